// Package notifications pushes coordinator milestones to ntfy.
//
// With no topic configured NewService returns a no-op, so callers never check
// whether notifications are enabled.
package notifications
