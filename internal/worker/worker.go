package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"proxyfarm/internal/config"
	"proxyfarm/internal/encoder"
	"proxyfarm/internal/logging"
	"proxyfarm/internal/queue"
	"proxyfarm/internal/services"
	"proxyfarm/internal/task"
	"proxyfarm/internal/version"
)

// Queue is the task queue as seen by a worker.
type Queue interface {
	Heartbeat(ctx context.Context, info version.WorkerInfo) error
	Unregister(ctx context.Context, name string) error
	Claim(ctx context.Context, worker, routingKey string) (*task.EncodeTask, error)
	MarkEncoding(ctx context.Context, id, worker string) error
	Finish(ctx context.Context, id, worker string, status task.Status, info string) error
}

// Publisher sends progress payloads on a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Encoder produces a proxy or chunk segment for one task.
type Encoder interface {
	Encode(ctx context.Context, t task.EncodeTask, onTick func(encoder.Tick)) error
}

// Stitcher concatenates ordered segments into outputPath.
type Stitcher interface {
	Stitch(ctx context.Context, outputPath string, segments []string) (string, error)
}

// ErrSourceMissing marks a task rejected at claim time because its source
// file is not reachable from this worker.
var ErrSourceMissing = fmt.Errorf("%w: source file missing", services.ErrNotFound)

const finishTimeout = 10 * time.Second

// Worker claims and executes tasks.
type Worker struct {
	Name       string
	Host       string
	RoutingKey string

	queue    Queue
	events   Publisher
	encoder  Encoder
	stitcher Stitcher

	concurrency       int
	pollInterval      time.Duration
	heartbeatInterval time.Duration
	logger            *slog.Logger
}

// New builds a worker identified by cfg.Worker.Name, routed by the running
// binary's version key.
func New(cfg *config.Config, q Queue, events Publisher, enc Encoder, st Stitcher, logger *slog.Logger) *Worker {
	host, _ := os.Hostname()
	name := strings.TrimSpace(cfg.Worker.Name)
	if name == "" {
		name = host
	}
	return &Worker{
		Name:              name,
		Host:              host,
		RoutingKey:        version.Current(),
		queue:             q,
		events:            events,
		encoder:           enc,
		stitcher:          st,
		concurrency:       max(cfg.Worker.Concurrency, 1),
		pollInterval:      cfg.WorkerPollInterval(),
		heartbeatInterval: cfg.HeartbeatInterval(),
		logger:            logging.NewComponentLogger(logger, "worker").With(logging.String(logging.FieldWorker, name)),
	}
}

// WithConcurrency overrides how many tasks run at once.
func (w *Worker) WithConcurrency(n int) *Worker {
	w.concurrency = max(n, 1)
	return w
}

func (w *Worker) info() version.WorkerInfo {
	return version.WorkerInfo{Name: w.Name, Host: w.Host, RoutingKey: w.RoutingKey}
}

// Process executes one claimed task and records its terminal status. It
// returns the task's failure, if any; the queue has already been updated.
func (w *Worker) Process(ctx context.Context, t *task.EncodeTask) error {
	logger := w.logger.With(
		logging.String(logging.FieldTaskID, t.ID),
		logging.String(logging.FieldSourceID, t.SourceID),
		logging.String("kind", string(t.Kind)),
	)
	w.publish(ctx, logger, t, task.StatusStarted, nil)

	if err := w.admit(t); err != nil {
		return w.fail(ctx, logger, t, err)
	}
	if err := w.queue.MarkEncoding(ctx, t.ID, w.Name); err != nil {
		return w.fail(ctx, logger, t, err)
	}
	zero := 0.0
	w.publish(ctx, logger, t, task.StatusEncoding, &zero)

	start := time.Now()
	if err := w.execute(ctx, logger, t); err != nil {
		return w.fail(ctx, logger, t, err)
	}

	done := 100.0
	w.publish(ctx, logger, t, task.StatusSuccess, &done)
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := w.queue.Finish(finishCtx, t.ID, w.Name, task.StatusSuccess, ""); err != nil {
		return fmt.Errorf("record success for %s: %w", t.ID, err)
	}
	logger.Info("task complete",
		logging.String("output", t.OutputPath),
		logging.Duration("elapsed", time.Since(start).Round(time.Millisecond)),
	)
	return nil
}

// admit rejects tasks this worker cannot run. Rejected tasks fail without retry.
func (w *Worker) admit(t *task.EncodeTask) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %w", services.ErrValidation, err)
	}
	if t.Kind == task.KindStitch {
		return nil
	}
	if _, err := os.Stat(t.Source.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSourceMissing, t.Source.Path)
		}
		return services.Wrap(services.ErrTransient, "worker", "stat source", t.Source.Path, err)
	}
	return nil
}

func (w *Worker) execute(ctx context.Context, logger *slog.Logger, t *task.EncodeTask) error {
	switch t.Kind {
	case task.KindStitch:
		_, err := w.stitcher.Stitch(ctx, t.OutputPath, t.Segments)
		return err
	default:
		publishEvery := logging.NewProgressSampler(1)
		logEvery := logging.NewProgressSampler(25)
		return w.encoder.Encode(ctx, *t, func(tick encoder.Tick) {
			if tick.Done {
				return
			}
			if publishEvery.ShouldLog(tick.Percent, "") {
				p := tick.Percent
				w.publish(ctx, logger, t, task.StatusEncoding, &p)
			}
			if logEvery.ShouldLog(tick.Percent, "") {
				logger.Debug("encode progress",
					logging.Float64("percent", tick.Percent),
					logging.Float64("speed", tick.Speed),
				)
			}
		})
	}
}

func (w *Worker) fail(ctx context.Context, logger *slog.Logger, t *task.EncodeTask, cause error) error {
	info := queue.FailureInfo(cause)
	if ctx.Err() != nil {
		info = queue.FailureInfo(services.Wrap(services.ErrTransient, "worker", "", "worker stopped", nil))
	}
	logging.WarnWithContext(logger, "task failed", "task_failed",
		logging.Error(cause),
		logging.String("info", info),
		logging.String(logging.FieldErrorHint, failureHint(cause)),
		logging.String(logging.FieldImpact, "clip proxy not produced"),
	)
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	w.publish(finishCtx, logger, t, task.StatusFailure, nil)
	if err := w.queue.Finish(finishCtx, t.ID, w.Name, task.StatusFailure, info); err != nil {
		return errors.Join(cause, fmt.Errorf("record failure for %s: %w", t.ID, err))
	}
	return cause
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, ErrSourceMissing):
		return "mount the source media on this worker at the same path as the coordinator"
	case errors.Is(err, services.ErrExternalTool):
		return "run the ffmpeg command from the debug log by hand"
	case errors.Is(err, services.ErrValidation):
		return "check that coordinator and worker run the same version"
	default:
		return "check logs for details"
	}
}

func (w *Worker) publish(ctx context.Context, logger *slog.Logger, t *task.EncodeTask, status task.Status, percent *float64) {
	if w.events == nil {
		return
	}
	ev := task.ProgressEvent{
		TaskID:         t.ID,
		GroupID:        t.GroupID,
		Status:         status,
		Percent:        percent,
		WorkerName:     w.Name,
		SourceFileName: t.Source.FileName,
		At:             time.Now().UTC(),
	}
	payload, err := task.EncodeEvent(ev)
	if err != nil {
		logger.Debug("progress event not encoded", logging.Error(err))
		return
	}
	if err := w.events.Publish(ctx, task.Channel(t.GroupID, t.ID), payload); err != nil {
		logger.Debug("progress event not published", logging.Error(err))
	}
}
