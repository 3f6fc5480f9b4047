// Package services defines shared utilities consumed by the coordinator, the
// encoder workers, and their collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp batch IDs, task IDs, stage names, worker
//     names, and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so typed failures from
//     any package can be classified with errors.Is.
//
// Domain packages wrap these markers inside their own error types so a caller
// can tell a missing file from a tool failure without string matching.
package services
