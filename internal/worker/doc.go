// Package worker runs the remote side of a dispatch: it registers in the
// queue's roster, claims tasks routed to its version key, runs ffmpeg encodes
// or segment stitches, and publishes lifecycle events for the coordinator.
//
// A Worker processes up to Concurrency tasks at once under one roster name.
// The coordinator's `queue --local-workers N` runs the same loop in-process.
package worker
