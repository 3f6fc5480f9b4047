package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"proxyfarm/internal/batch"
	"proxyfarm/internal/chunk"
	"proxyfarm/internal/dispatch"
	"proxyfarm/internal/job"
	"proxyfarm/internal/link"
	"proxyfarm/internal/logging"
	"proxyfarm/internal/services"
	"proxyfarm/internal/staging"
	"proxyfarm/internal/task"
	"proxyfarm/internal/version"
)

const staleSegmentAge = 24 * time.Hour

// Run processes the configured timeline once. The returned report is
// non-nil whenever the batch was built, including on error.
func (c *Coordinator) Run(ctx context.Context) (*Report, error) {
	lock := flock.New(c.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire coordinator lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrCoordinatorBusy, c.cfg.LockPath())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			c.logger.Warn("failed to release coordinator lock", logging.Error(err))
		}
	}()

	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, c.logger)
	start := time.Now()

	report, err := c.run(ctx)
	if report != nil {
		report.Duration = time.Since(start)
	}
	if err != nil {
		logging.ErrorWithContext(logger, "batch failed", "batch_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, errorHint(err)),
		)
		if nerr := c.notifier.NotifyError(context.WithoutCancel(ctx), err, "proxy batch"); nerr != nil {
			logger.Debug("error notification failed", logging.Error(nerr))
		}
		return report, err
	}
	if report.Tasks > 0 {
		if nerr := c.notifier.NotifyBatchCompleted(ctx, report.Summary()); nerr != nil {
			logger.Debug("completion notification failed", logging.Error(nerr))
		}
	}
	logger.Info("batch complete",
		logging.Int("linked", len(report.Link.Linked)),
		logging.Int("link_failed", len(report.Link.Failed)),
		logging.Int("encode_failed", len(report.EncodeFailures)),
		logging.Duration("elapsed", report.Duration.Round(time.Second)),
	)
	return report, nil
}

func (c *Coordinator) run(ctx context.Context) (*Report, error) {
	if err := c.queue.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset queue: %w", err)
	}

	timeline := c.cfg.Editor.Timeline
	project, err := c.editor.CurrentProject(ctx)
	if err != nil {
		return nil, fmt.Errorf("read current project: %w", err)
	}
	records, err := c.editor.ListClipRecords(ctx, timeline)
	if err != nil {
		return nil, fmt.Errorf("list clips: %w", err)
	}
	handles, err := c.editor.Handles(ctx, timeline)
	if err != nil {
		return nil, fmt.Errorf("list clip handles: %w", err)
	}
	linker := link.NewLinker(c.editor, link.NewIndex(handles...), c.logger)

	b := batch.New(project, timeline, records, batch.JobOptions(c.cfg), c.logger)
	report := &Report{Project: project, Timeline: timeline, Clips: len(records)}
	defer report.absorb(b)
	c.logWarnings(b.Warnings, "invalid clip record skipped")

	if err := b.Reconcile(ctx, c.decider, linker); err != nil {
		return report, fmt.Errorf("reconcile: %w", err)
	}
	if b.Len() == 0 {
		c.logger.Info("nothing to encode", logging.Int("clips", len(records)))
		return report, nil
	}
	b.ResolveInputLevels(ctx, c.cfg.Encoding.DataLevel, c.prober)

	if err := c.gate(ctx); err != nil {
		return report, err
	}

	warned := len(b.Warnings)
	tasks := b.Hashable(chunk.NewPlanner(c.cfg), batch.Settings(c.cfg), c.routingKey)
	c.logWarnings(b.Warnings[warned:], "clip skipped")
	if len(tasks) == 0 {
		return report, nil
	}
	report.Tasks = len(tasks)
	if nerr := c.notifier.NotifyBatchStarted(ctx, project, timeline, len(tasks)); nerr != nil {
		c.logger.Debug("start notification failed", logging.Error(nerr))
	}

	opts := append(dispatch.FromConfig(c.cfg), dispatch.WithProgress(c.onProgress))
	res, err := dispatch.New(c.queue, c.queue, c.logger, opts...).Submit(ctx, tasks)
	if err != nil {
		return report, err
	}
	report.GroupID = res.GroupID

	current, err := c.editor.CurrentProject(ctx)
	if err != nil {
		return report, fmt.Errorf("re-read current project: %w", err)
	}
	if current != project {
		return report, fmt.Errorf("%w: started in %q, now %q", ErrProjectChanged, project, current)
	}

	ready := c.collect(b, tasks, res, report)
	staging.CleanStale(ctx, c.cfg.Paths.TempDir, staleSegmentAge, nil, c.logger)
	if len(ready) == 0 {
		return report, nil
	}
	report.Link, err = linker.LinkAll(ctx, ready)
	return report, err
}

// gate checks the worker roster against the routing key.
func (c *Coordinator) gate(ctx context.Context) error {
	roster, err := c.queue.Roster(ctx)
	if err != nil {
		return fmt.Errorf("read worker roster: %w", err)
	}
	partition, err := version.Check(c.routingKey, roster)
	if err != nil {
		return err
	}
	if partition.Empty {
		logging.WarnWithContext(c.logger, "no workers online", "roster_empty",
			logging.String("routing_key", c.routingKey),
			logging.String(logging.FieldErrorHint, "start `proxyfarm worker` on render nodes or pass --local-workers"),
			logging.String(logging.FieldImpact, "tasks wait until a worker joins or expire"),
		)
		return nil
	}
	proceed, err := version.Confirm(ctx, c.decider, partition)
	if err != nil {
		return err
	}
	if !proceed {
		return fmt.Errorf("%w: incompatible workers online", ErrDeclined)
	}
	c.logger.Info("worker roster checked",
		logging.Int("compatible", len(partition.Compatible)),
		logging.Int("incompatible", len(partition.Incompatible)),
	)
	return nil
}

func (c *Coordinator) logWarnings(warnings []error, msg string) {
	for _, w := range warnings {
		logging.WarnWithContext(c.logger, msg, "batch_warning",
			logging.Error(w),
			logging.String(logging.FieldImpact, "clip not proxied this run"),
		)
	}
}

func errorHint(err error) string {
	var noWorkers *version.NoCompatibleWorkersError
	switch {
	case errors.As(err, &noWorkers):
		return "upgrade workers to the coordinator's version"
	case errors.Is(err, ErrProjectChanged):
		return "keep the editor on one project until the batch finishes"
	case errors.Is(err, link.ErrAllLinksFailed):
		return "check the links file and the editor's media pool"
	case errors.Is(err, ErrCoordinatorBusy):
		return "wait for the other coordinator to finish"
	case errors.Is(err, context.Canceled):
		return "batch was interrupted; rerun to resume"
	default:
		return "check logs for details"
	}
}

// collect maps successful encode and stitch results back to their jobs.
func (c *Coordinator) collect(b *batch.Batch, tasks []task.EncodeTask, res *dispatch.Result, report *Report) []*job.Job {
	finals := batch.Finals(tasks)
	var ready []*job.Job
	for _, r := range res.Results {
		sourceID, final := finals[r.ID]
		if !r.Succeeded() {
			report.EncodeFailures = append(report.EncodeFailures, TaskFailure{
				SourceID: r.Args.SourceID,
				Kind:     r.Args.Kind,
				Worker:   r.WorkerName,
				Info:     r.Info,
			})
			continue
		}
		if !final {
			continue
		}
		j, ok := b.Job(sourceID)
		if !ok {
			continue
		}
		j.OutputPath = r.Args.OutputPath
		ready = append(ready, j)
	}
	for i := range report.EncodeFailures {
		if j, ok := b.Job(report.EncodeFailures[i].SourceID); ok {
			report.EncodeFailures[i].ClipName = j.ClipName
		}
	}
	return ready
}
