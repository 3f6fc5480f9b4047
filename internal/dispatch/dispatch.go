// Package dispatch submits one batch of tasks as a synchronized group and
// blocks until every task reaches a terminal status, folding worker progress
// events into an aggregate estimate along the way.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"proxyfarm/internal/config"
	"proxyfarm/internal/logging"
	"proxyfarm/internal/progress"
	"proxyfarm/internal/task"
)

// TaskQueue accepts group submissions.
type TaskQueue interface {
	SubmitGroup(ctx context.Context, tasks []task.EncodeTask, expiry time.Duration) (task.Group, error)
}

// Subscriber delivers published payloads whose channel matches pattern.
type Subscriber interface {
	Subscribe(ctx context.Context, pattern string, handler func(channel string, payload []byte)) (func(), error)
}

// ErrEmptyGroup is returned when Submit is called without tasks.
var ErrEmptyGroup = errors.New("dispatch: no tasks to submit")

// Result summarizes one finished group.
type Result struct {
	GroupID   string
	Results   []task.Result
	Succeeded []task.Result
	Failed    []task.Result
	Snapshot  progress.Snapshot
	// Dropped counts progress payloads discarded because the event buffer was full.
	Dropped int
}

// Dispatcher is not safe for concurrent Submit calls.
type Dispatcher struct {
	queue        TaskQueue
	events       Subscriber
	expiry       time.Duration
	pollInterval time.Duration
	buffer       int
	onProgress   func(progress.Snapshot)
	logger       *slog.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithExpiry sets how long submitted tasks may wait unclaimed.
func WithExpiry(expiry time.Duration) Option {
	return func(disp *Dispatcher) {
		if expiry > 0 {
			disp.expiry = expiry
		}
	}
}

// WithPollInterval sets how often group readiness is polled.
func WithPollInterval(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.pollInterval = d
		}
	}
}

// WithEventBuffer sets how many undrained progress payloads are held.
func WithEventBuffer(n int) Option {
	return func(disp *Dispatcher) {
		if n > 0 {
			disp.buffer = n
		}
	}
}

// WithProgress registers a callback invoked from the drain goroutine
// whenever the aggregate state changes.
func WithProgress(fn func(progress.Snapshot)) Option {
	return func(disp *Dispatcher) {
		disp.onProgress = fn
	}
}

// FromConfig maps the [dispatch] section onto options.
func FromConfig(cfg *config.Config) []Option {
	return []Option{
		WithExpiry(cfg.TaskExpiry()),
		WithPollInterval(cfg.DispatchPollInterval()),
		WithEventBuffer(cfg.Dispatch.EventBufferSize),
	}
}

// New constructs a dispatcher.
func New(queue TaskQueue, events Subscriber, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:        queue,
		events:       events,
		expiry:       time.Hour,
		pollInterval: 500 * time.Millisecond,
		buffer:       256,
		logger:       logging.NewComponentLogger(logger, "dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit stamps tasks with a fresh group id, submits them, and waits until
// the group is ready. Cancelling ctx aborts the wait and returns its error;
// tasks already queued are left to expire.
func (d *Dispatcher) Submit(ctx context.Context, tasks []task.EncodeTask) (*Result, error) {
	if len(tasks) == 0 {
		return nil, ErrEmptyGroup
	}
	groupID := uuid.NewString()
	stamped := make([]task.EncodeTask, len(tasks))
	for i, t := range tasks {
		t.GroupID = groupID
		stamped[i] = t
	}
	logger := d.logger.With(logging.String(logging.FieldBatchID, groupID))

	payloads := make(chan []byte, d.buffer)
	var dropped atomic.Int64
	handler := func(_ string, payload []byte) {
		select {
		case payloads <- payload:
		default:
			dropped.Add(1)
		}
	}
	// Subscribe first so early events from fast workers are not missed.
	unsubscribe, err := d.events.Subscribe(ctx, task.GroupPattern(groupID), handler)
	if err != nil {
		return nil, fmt.Errorf("subscribe to group %s: %w", groupID, err)
	}
	defer unsubscribe()

	group, err := d.queue.SubmitGroup(ctx, stamped, d.expiry)
	if err != nil {
		return nil, fmt.Errorf("submit group %s: %w", groupID, err)
	}
	logger.Info("group submitted",
		logging.Int("tasks", len(stamped)),
		logging.Duration("expiry", d.expiry),
	)

	agg := progress.New(len(stamped))
	sampler := logging.NewProgressSampler(10)
	ready := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(ready)
		return d.pollReady(gctx, group)
	})
	g.Go(func() error {
		for {
			select {
			case payload := <-payloads:
				d.observe(logger, agg, sampler, groupID, payload)
			case <-ready:
				for {
					select {
					case payload := <-payloads:
						d.observe(logger, agg, sampler, groupID, payload)
					default:
						return nil
					}
				}
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	if err := g.Wait(); err != nil {
		logging.WarnWithContext(logger, "dispatch aborted", "dispatch_aborted",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "rerun the batch; queued tasks expire on their own"),
			logging.String(logging.FieldImpact, "no proxies from this run will be linked"),
		)
		return nil, fmt.Errorf("wait for group %s: %w", groupID, err)
	}

	results, err := group.Results(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect results for group %s: %w", groupID, err)
	}
	agg.Settle(results)
	res := &Result{
		GroupID:  groupID,
		Results:  results,
		Snapshot: agg.Snapshot(),
		Dropped:  int(dropped.Load()),
	}
	for _, r := range results {
		if r.Succeeded() {
			res.Succeeded = append(res.Succeeded, r)
			continue
		}
		res.Failed = append(res.Failed, r)
		logging.WarnWithContext(logger, "task failed", "task_failed",
			logging.String(logging.FieldTaskID, r.ID),
			logging.String(logging.FieldSourceID, r.Args.SourceID),
			logging.String(logging.FieldWorker, r.WorkerName),
			logging.String("kind", string(r.Args.Kind)),
			logging.String("info", r.Info),
			logging.String(logging.FieldErrorHint, "check the worker log for this task"),
			logging.String(logging.FieldImpact, "clip will not be linked"),
		)
	}
	if res.Dropped > 0 {
		logging.WarnWithContext(logger, "progress events dropped", "progress_events_dropped",
			logging.Int("dropped", res.Dropped),
			logging.Alert("event_buffer_full"),
			logging.String(logging.FieldErrorHint, "raise dispatch.event_buffer_size"),
			logging.String(logging.FieldImpact, "progress display lagged; results unaffected"),
		)
	}
	if d.onProgress != nil {
		d.onProgress(res.Snapshot)
	}
	logger.Info("group complete",
		logging.Int("succeeded", len(res.Succeeded)),
		logging.Int("failed", len(res.Failed)),
	)
	return res, nil
}

func (d *Dispatcher) pollReady(ctx context.Context, group task.Group) error {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		ok, err := group.Ready(ctx)
		if err != nil {
			return fmt.Errorf("poll group: %w", err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) observe(logger *slog.Logger, agg *progress.Aggregator, sampler *logging.ProgressSampler, groupID string, payload []byte) {
	ev, err := task.DecodeEvent(payload)
	if err != nil {
		logger.Debug("discarding malformed progress event", logging.Error(err))
		return
	}
	if ev.GroupID != groupID {
		return
	}
	if !agg.Observe(ev) {
		return
	}
	snap := agg.Snapshot()
	if sampler.ShouldLog(snap.Percent, "") {
		logger.Info("dispatch progress",
			logging.Float64("percent", snap.Percent),
			logging.Int("done", snap.Done()),
			logging.Int("total", snap.Total),
			logging.Int("active_workers", len(snap.ActiveWorkers)),
		)
	}
	if d.onProgress != nil {
		d.onProgress(snap)
	}
}
