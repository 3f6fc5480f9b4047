package workflow

import (
	"time"

	"proxyfarm/internal/batch"
	"proxyfarm/internal/link"
	"proxyfarm/internal/notifications"
	"proxyfarm/internal/task"
)

// TaskFailure is one encode, chunk, or stitch task that did not succeed.
type TaskFailure struct {
	SourceID string
	ClipName string
	Kind     task.Kind
	Worker   string
	Info     string
}

// Report is the outcome of one coordinator run.
type Report struct {
	Project        string
	Timeline       string
	GroupID        string
	Clips          int
	Tasks          int
	Counters       batch.Counters
	Removed        []batch.Removal
	Warnings       []error
	EncodeFailures []TaskFailure
	Link           link.Report
	Duration       time.Duration
}

func (r *Report) absorb(b *batch.Batch) {
	r.Counters = b.Counters
	r.Removed = b.Removed
	r.Warnings = b.Warnings
}

// Linked counts clips linked this run, including existing proxies adopted
// during reconciliation.
func (r *Report) Linked() int {
	return r.Counters.LinkedOK + len(r.Link.Linked)
}

// Failed counts clips that ended the run without a proxy they were meant to get.
func (r *Report) Failed() int {
	clips := make(map[string]struct{})
	for _, f := range r.EncodeFailures {
		clips[f.SourceID] = struct{}{}
	}
	for _, f := range r.Link.Failed {
		clips[f.SourceID] = struct{}{}
	}
	return len(clips) + r.Counters.LinkFailed
}

// Summary converts the report for notifications.
func (r *Report) Summary() notifications.BatchSummary {
	return notifications.BatchSummary{
		Project:  r.Project,
		Timeline: r.Timeline,
		Linked:   r.Linked(),
		Failed:   r.Failed(),
		Skipped:  len(r.Removed),
		Duration: r.Duration,
	}
}
