package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"proxyfarm/internal/config"
	"proxyfarm/internal/decide"
	"proxyfarm/internal/dispatch"
	"proxyfarm/internal/job"
	"proxyfarm/internal/link"
	"proxyfarm/internal/logging"
	"proxyfarm/internal/notifications"
	"proxyfarm/internal/progress"
	"proxyfarm/internal/services"
	"proxyfarm/internal/version"
)

// ClipSource is the editor as seen by the coordinator.
type ClipSource interface {
	link.Editor
	ListClipRecords(ctx context.Context, timeline string) ([]job.ClipRecord, error)
	Handles(ctx context.Context, timeline string) ([]link.Handle, error)
}

// Queue is the task queue and event channel the coordinator drives.
type Queue interface {
	dispatch.TaskQueue
	dispatch.Subscriber
	Reset(ctx context.Context) error
	Roster(ctx context.Context) ([]version.WorkerInfo, error)
}

var (
	// ErrProjectChanged aborts a run when the editor switched projects while
	// work was in flight. Encoded output is kept.
	ErrProjectChanged = fmt.Errorf("%w: editor project changed during run", services.ErrValidation)
	// ErrCoordinatorBusy is returned when another coordinator holds the lock.
	ErrCoordinatorBusy = errors.New("another coordinator is running against this queue")
	// ErrDeclined is returned when the operator declines to proceed.
	ErrDeclined = errors.New("run declined")
)

// Coordinator runs batches. One Run at a time per queue database.
type Coordinator struct {
	cfg        *config.Config
	queue      Queue
	editor     ClipSource
	decider    decide.Decider
	prober     job.Prober
	notifier   notifications.Service
	routingKey string
	onProgress func(progress.Snapshot)
	logger     *slog.Logger
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithProber sets the color range prober used when encoding.data_level is auto.
func WithProber(p job.Prober) Option {
	return func(c *Coordinator) { c.prober = p }
}

// WithNotifier replaces the config-derived notifier.
func WithNotifier(n notifications.Service) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithRoutingKey overrides the version key tasks are routed by.
func WithRoutingKey(key string) Option {
	return func(c *Coordinator) { c.routingKey = key }
}

// WithProgress registers a callback for aggregate progress during dispatch.
func WithProgress(fn func(progress.Snapshot)) Option {
	return func(c *Coordinator) { c.onProgress = fn }
}

// New constructs a coordinator.
func New(cfg *config.Config, q Queue, editor ClipSource, decider decide.Decider, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:        cfg,
		queue:      q,
		editor:     editor,
		decider:    decider,
		notifier:   notifications.NewService(cfg),
		routingKey: version.Current(),
		logger:     logging.NewComponentLogger(logger, "coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.decider == nil {
		c.decider = decide.PolicyFromConfig(cfg.Reconcile)
	}
	return c
}
