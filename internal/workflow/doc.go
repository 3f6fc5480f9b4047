// Package workflow is the coordinator: it turns one editor timeline into
// linked proxies.
//
// A run takes the single-instance lock, resets the transient queue, builds a
// batch from the editor's clip records, reconciles it against existing and
// offline proxies, gates dispatch on worker versions, submits the remaining
// work as one group and waits for it, then links every finished proxy back to
// its source clip. Questions raised along the way go to the injected Decider.
package workflow
