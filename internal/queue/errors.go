package queue

import (
	"errors"
	"fmt"

	"proxyfarm/internal/services"
)

var (
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
	// ErrTaskNotFound is returned when a task id is unknown.
	ErrTaskNotFound = fmt.Errorf("task not found: %w", services.ErrNotFound)
	// ErrTaskNotActive is returned when a worker reports on a task it no
	// longer holds, typically because a sweep failed it first.
	ErrTaskNotActive = errors.New("task is not active")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("queue store closed")
)

// Info strings recorded on tasks failed by the queue itself.
const (
	InfoExpired          = "expired"
	InfoDependencyFailed = "dependency failed"
	InfoWorkerLost       = "worker lost"
)

// FailureInfo renders an error into the info column of a failed task,
// prefixed with its failure classification.
func FailureInfo(err error) string {
	if err == nil {
		return ""
	}
	return services.FailureKind(err) + ": " + err.Error()
}
