package batch

import (
	"context"
	"fmt"

	"proxyfarm/internal/decide"
	"proxyfarm/internal/job"
	"proxyfarm/internal/logging"
)

// Linker links an existing proxy to a job's source clip.
type Linker interface {
	Link(ctx context.Context, j *job.Job, proxyPath string) error
}

// Reconcile runs the passes in fixed order: drop linked clips, resolve
// unlinked clips that already have a proxy on disk, then handle offline
// clips. Questions go through d; existing proxies are linked through l.
func (b *Batch) Reconcile(ctx context.Context, d decide.Decider, l Linker) error {
	b.dropLinked()
	if err := b.reconcileExisting(ctx, d, l); err != nil {
		return fmt.Errorf("existing proxies: %w", err)
	}
	if err := b.reconcileOffline(ctx, d); err != nil {
		return fmt.Errorf("offline proxies: %w", err)
	}
	b.logger.Info("reconciliation complete",
		logging.Int("surviving", len(b.Jobs)),
		logging.Int("removed", b.Counters.Removed),
		logging.Int("linked_existing", b.Counters.LinkedOK),
		logging.Int("link_failed", b.Counters.LinkFailed),
		logging.Int("requeued", b.Counters.Requeued),
	)
	return nil
}

func (b *Batch) dropLinked() {
	n := b.remove(ReasonAlreadyLinked, func(j *job.Job) bool {
		return j.IsLinked()
	})
	if n > 0 {
		b.logger.Info("skipping clips with linked proxies", logging.Int("count", n))
	}
}

func (b *Batch) reconcileExisting(ctx context.Context, d decide.Decider, l Linker) error {
	var candidates []*job.Job
	for _, j := range b.Jobs {
		if j.Status != job.StatusUnlinked {
			continue
		}
		path, err := j.FindNewestLinkableProxy()
		if err != nil {
			b.Warnings = append(b.Warnings, fmt.Errorf("%s: %w", j.ClipName, err))
			continue
		}
		if path != "" {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	answer, err := decide.AskValid(ctx, d, decide.ExistingProxies(clipNames(candidates)))
	if err != nil {
		return err
	}
	b.logger.Info("existing proxies decision",
		logging.Args(logging.DecisionAttrs("existing_proxies", string(answer), fmt.Sprintf("%d candidates", len(candidates)))...)...)
	if answer == decide.DecisionOverwrite {
		return nil
	}

	linked := make(map[*job.Job]struct{})
	var failed []*job.Job
	for _, j := range candidates {
		if err := l.Link(ctx, j, j.NewestProxy); err != nil {
			b.logger.Debug("existing proxy link failed",
				logging.String(logging.FieldSourceID, j.SourceID),
				logging.String("proxy", j.NewestProxy),
				logging.Error(err),
			)
			failed = append(failed, j)
			continue
		}
		linked[j] = struct{}{}
	}
	b.Counters.LinkedOK += b.removeSet(ReasonLinkedExisting, linked)
	if len(failed) == 0 {
		return nil
	}

	requeue, err := decide.AskValid(ctx, d, decide.RequeueLinkFailures(clipNames(failed)))
	if err != nil {
		return err
	}
	if requeue == decide.DecisionYes {
		b.Counters.Requeued += len(failed)
		return nil
	}
	set := make(map[*job.Job]struct{}, len(failed))
	for _, j := range failed {
		set[j] = struct{}{}
	}
	b.Counters.LinkFailed += b.removeSet(ReasonLinkFailed, set)
	return nil
}

func (b *Batch) reconcileOffline(ctx context.Context, d decide.Decider) error {
	var offline []*job.Job
	for _, j := range b.Jobs {
		if j.IsOffline() {
			offline = append(offline, j)
		}
	}
	if len(offline) == 0 {
		return nil
	}

	answer, err := decide.AskValid(ctx, d, decide.OfflineMedia(clipNames(offline)))
	if err != nil {
		return err
	}
	skip := make(map[*job.Job]struct{})
	for _, j := range offline {
		switch answer {
		case decide.DecisionSkipAll:
			skip[j] = struct{}{}
		case decide.DecisionChoose:
			item, err := decide.AskValid(ctx, d, decide.OfflineItem(j.ClipName))
			if err != nil {
				return err
			}
			if item == decide.DecisionSkip {
				skip[j] = struct{}{}
			}
		}
	}
	for _, j := range offline {
		if _, skipped := skip[j]; !skipped {
			j.Status = job.StatusUnlinked
		}
	}
	b.removeSet(ReasonOfflineSkipped, skip)
	return nil
}
