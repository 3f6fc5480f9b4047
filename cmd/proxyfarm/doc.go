// Package main hosts the proxyfarm CLI.
//
// One binary plays both roles. `proxyfarm queue` is the coordinator: it reads
// the editor manifest, reconciles the timeline, and dispatches encode work to
// the shared queue database. `proxyfarm worker` runs on every render node and
// drains that queue. The remaining commands inspect the roster, segment
// scratch space, and configuration.
//
// Commands stay thin; behavior lives in the internal packages.
package main
