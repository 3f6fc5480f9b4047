package stitch

import (
	"fmt"
	"strconv"
	"strings"

	"proxyfarm/internal/services"
)

// FormatMismatchError reports segments (or the output) with differing extensions.
type FormatMismatchError struct {
	Extensions []string
}

func (e *FormatMismatchError) Error() string {
	return "segments do not share one format: " + strings.Join(e.Extensions, ", ")
}

func (e *FormatMismatchError) Unwrap() error { return services.ErrValidation }

// MissingSegmentError reports a gap in the segment sequence, or a listed
// segment absent from disk.
type MissingSegmentError struct {
	Missing []int
	Path    string
}

func (e *MissingSegmentError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("segment %d not found at %s", e.Missing[0], e.Path)
	}
	parts := make([]string, len(e.Missing))
	for i, n := range e.Missing {
		parts[i] = strconv.Itoa(n)
	}
	return "missing segment " + strings.Join(parts, ", ")
}

func (e *MissingSegmentError) Unwrap() error { return services.ErrValidation }

// SegmentNameError reports a segment whose name carries no usable sequence number.
type SegmentNameError struct {
	Path   string
	Reason string
}

func (e *SegmentNameError) Error() string {
	return fmt.Sprintf("segment %s: %s", e.Path, e.Reason)
}

func (e *SegmentNameError) Unwrap() error { return services.ErrValidation }
