package worker

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"

	"proxyfarm/internal/logging"
)

// Run registers the worker and processes tasks until ctx is cancelled. At
// most Concurrency tasks run at once; Run waits for them before returning.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.queue.Heartbeat(ctx, w.info()); err != nil {
		return err
	}
	w.logger.Info("worker online",
		logging.String("routing_key", w.RoutingKey),
		logging.Int("concurrency", w.concurrency),
	)

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		w.heartbeatLoop(hbCtx)
	}()

	slots := semaphore.NewWeighted(int64(w.concurrency))
	err := w.claimLoop(ctx, slots)

	// Wait for in-flight tasks by taking every slot.
	_ = slots.Acquire(context.WithoutCancel(ctx), int64(w.concurrency))
	stopHeartbeat()
	<-hbDone

	unregisterCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if uerr := w.queue.Unregister(unregisterCtx, w.Name); uerr != nil {
		w.logger.Debug("unregister failed", logging.Error(uerr))
	}
	w.logger.Info("worker offline")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) claimLoop(ctx context.Context, slots *semaphore.Weighted) error {
	for {
		if err := slots.Acquire(ctx, 1); err != nil {
			return err
		}
		claimed, err := w.queue.Claim(ctx, w.Name, w.RoutingKey)
		if err != nil {
			slots.Release(1)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.WarnWithContext(w.logger, "claim failed", "claim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the queue database is reachable"),
				logging.String(logging.FieldImpact, "worker idles until the queue recovers"),
			)
			if !sleep(ctx, w.pollInterval) {
				return ctx.Err()
			}
			continue
		}
		if claimed == nil {
			slots.Release(1)
			if !sleep(ctx, w.pollInterval) {
				return ctx.Err()
			}
			continue
		}
		go func() {
			defer slots.Release(1)
			_ = w.Process(ctx, claimed)
		}()
	}
}

// RunOnce claims and processes at most one task without registering. It
// reports whether a task was claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	claimed, err := w.queue.Claim(ctx, w.Name, w.RoutingKey)
	if err != nil || claimed == nil {
		return false, err
	}
	return true, w.Process(ctx, claimed)
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	interval := w.heartbeatInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.Heartbeat(ctx, w.info()); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Warn("heartbeat failed", logging.Error(err))
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
