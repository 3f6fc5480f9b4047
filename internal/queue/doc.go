// Package queue is the task-queue and publish/subscribe adapter shared by the
// coordinator and its workers. It persists task groups, tasks, the worker
// roster, and progress events in one SQLite file on shared storage.
//
// The coordinator submits a group of EncodeTasks with an expiry and polls the
// returned task.Group for readiness. Workers register heartbeats, claim
// pending tasks whose routing key matches their build and whose dependencies
// have succeeded, then report a terminal status. Expired tasks, stitch tasks
// whose dependencies failed, and tasks held by workers that stopped
// heartbeating are failed queue-side during each sweep, so a group always
// becomes ready eventually.
//
// Events are delivered at most once. A single poller per Store tails the
// events table and fans rows out through an in-process Hub; completion must
// never be inferred from events alone.
//
// The database is transient. Schema changes bump schemaVersion; operators
// delete the file to adopt a new schema.
package queue
