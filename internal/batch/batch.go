// Package batch builds the set of Jobs for one project/timeline, reconciles
// it against proxies that already exist or are already linked, and flattens
// the survivors into EncodeTasks.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"proxyfarm/internal/job"
	"proxyfarm/internal/logging"
)

// Counters never decrease within one reconciliation run.
type Counters struct {
	LinkedOK   int
	LinkFailed int
	Requeued   int
	Removed    int
}

// Removal records a Job dropped from the batch and why.
type Removal struct {
	Job    *job.Job
	Reason string
}

// Removal reasons.
const (
	ReasonAlreadyLinked  = "already linked"
	ReasonLinkedExisting = "linked existing proxy"
	ReasonLinkFailed     = "existing proxy failed to link"
	ReasonOfflineSkipped = "offline, skipped"
	ReasonUnplannable    = "output path unresolvable"
)

// Batch is the live Job set for one project and timeline.
type Batch struct {
	Project  string
	Timeline string
	Jobs     []*job.Job
	Removed  []Removal
	Counters Counters
	Warnings []error

	logger *slog.Logger
}

// ErrDuplicateSource marks a record whose source was already in the batch.
var ErrDuplicateSource = errors.New("duplicate source record")

// New builds a batch from editor records. Invalid records and repeated
// source identifiers are skipped and reported in Warnings; the first record
// for a source wins.
func New(project, timeline string, records []job.ClipRecord, opts job.Options, logger *slog.Logger) *Batch {
	if logger == nil {
		logger = logging.NewNop()
	}
	b := &Batch{
		Project:  project,
		Timeline: timeline,
		logger:   logging.NewComponentLogger(logger, "batch"),
	}
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		j, err := job.FromRecord(rec, opts)
		if err != nil {
			b.Warnings = append(b.Warnings, err)
			continue
		}
		if _, dup := seen[j.SourceID]; dup {
			b.Warnings = append(b.Warnings, fmt.Errorf("%w: %s (%s)", ErrDuplicateSource, j.SourceID, j.ClipName))
			continue
		}
		seen[j.SourceID] = struct{}{}
		b.Jobs = append(b.Jobs, j)
	}
	return b
}

// Len returns the number of surviving jobs.
func (b *Batch) Len() int { return len(b.Jobs) }

// Job returns the surviving or removed job for sourceID.
func (b *Batch) Job(sourceID string) (*job.Job, bool) {
	for _, j := range b.Jobs {
		if j.SourceID == sourceID {
			return j, true
		}
	}
	for _, r := range b.Removed {
		if r.Job.SourceID == sourceID {
			return r.Job, true
		}
	}
	return nil, false
}

// remove drops every job for which drop returns true.
func (b *Batch) remove(reason string, drop func(*job.Job) bool) int {
	kept := b.Jobs[:0]
	n := 0
	for _, j := range b.Jobs {
		if drop(j) {
			b.Removed = append(b.Removed, Removal{Job: j, Reason: reason})
			b.Counters.Removed++
			n++
			continue
		}
		kept = append(kept, j)
	}
	for i := len(kept); i < len(b.Jobs); i++ {
		b.Jobs[i] = nil
	}
	b.Jobs = kept
	return n
}

func (b *Batch) removeSet(reason string, set map[*job.Job]struct{}) int {
	return b.remove(reason, func(j *job.Job) bool {
		_, ok := set[j]
		return ok
	})
}

// ResolveInputLevels sets every surviving job's input level. Unknown color
// ranges fall back to limited and are logged, not returned.
func (b *Batch) ResolveInputLevels(ctx context.Context, mode string, prober job.Prober) {
	for _, j := range b.Jobs {
		if _, err := j.ResolveInputLevel(ctx, mode, prober); err != nil {
			logging.WarnWithContext(b.logger, "input level unknown", "color_range_unknown",
				logging.String(logging.FieldSourceID, j.SourceID),
				logging.String("clip", j.ClipName),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "set encoding.data_level to full or limited to skip probing"),
				logging.String(logging.FieldImpact, "proxy encoded assuming limited range"),
			)
		}
	}
}

func clipNames(jobs []*job.Job) []string {
	names := make([]string, len(jobs))
	for i, j := range jobs {
		names[i] = j.ClipName
	}
	return names
}
