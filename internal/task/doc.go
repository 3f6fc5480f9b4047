// Package task defines the transport-safe work units exchanged between the
// coordinator and encoder workers: EncodeTask, ProgressEvent, and Result, plus
// the Group contract a task queue returns for one synchronized submission.
//
// Everything here is plain data that survives a JSON round trip. Nothing in
// an EncodeTask refers to editor objects; the coordinator resolves source
// identifiers back to editor handles on its own side.
package task
