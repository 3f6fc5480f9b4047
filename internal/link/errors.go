package link

import (
	"errors"
	"fmt"

	"proxyfarm/internal/services"
)

// ErrAllLinksFailed aborts a run when not a single output could be linked,
// which almost always means a different project is open.
var ErrAllLinksFailed = errors.New("every link attempt failed")

// ProxyFileMissingError reports a proxy path that does not exist on disk.
type ProxyFileMissingError struct {
	Path string
}

func (e *ProxyFileMissingError) Error() string {
	return fmt.Sprintf("proxy file missing: %s", e.Path)
}

func (e *ProxyFileMissingError) Unwrap() error { return services.ErrNotFound }

// StaleReferenceError reports a source reference that no longer resolves,
// usually because the editor switched projects after the batch was built.
// Re-running the queue command reloads fresh references.
type StaleReferenceError struct {
	SourceID string
	Reason   string
}

func (e *StaleReferenceError) Error() string {
	return fmt.Sprintf("stale reference for source %s: %s", e.SourceID, e.Reason)
}

func (e *StaleReferenceError) Unwrap() error { return services.ErrNotFound }

// LinkMismatchError reports that the editor refused the association. The
// editor gives no reason beyond the refusal itself.
type LinkMismatchError struct {
	SourceID string
	Path     string
}

func (e *LinkMismatchError) Error() string {
	return fmt.Sprintf("editor rejected proxy %s for source %s", e.Path, e.SourceID)
}

func (e *LinkMismatchError) Unwrap() error { return services.ErrValidation }
