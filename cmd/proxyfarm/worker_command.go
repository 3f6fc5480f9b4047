package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"proxyfarm/internal/encoder"
	"proxyfarm/internal/logging"
	"proxyfarm/internal/preflight"
	"proxyfarm/internal/queue"
	"proxyfarm/internal/stitch"
	"proxyfarm/internal/worker"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var (
		name        string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Claim and encode tasks from the shared queue until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if name != "" {
				cfg.Worker.Name = name
			}
			if concurrency < 0 {
				return fmt.Errorf("--concurrency must be positive")
			}

			logger, err := ctx.logger("worker.log")
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := checkPreflight(runCtx, cmd, cfg, preflight.RoleWorker); err != nil {
				return err
			}

			return ctx.withQueueStore(func(store *queue.Store) error {
				w := worker.New(cfg, store, store,
					encoder.New(cfg.FFmpegBinary(), logger),
					stitch.New(cfg.FFmpegBinary(), logger),
					logger,
				)
				if concurrency > 0 {
					w.WithConcurrency(concurrency)
				}
				logger.Info("worker started",
					logging.String(logging.FieldWorker, w.Name),
					logging.String("routing_key", w.RoutingKey),
					logging.String("queue", cfg.QueueDBPath()),
				)
				return w.Run(runCtx)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Worker name in the roster (defaults to worker.name)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Tasks to run at once (defaults to worker.concurrency)")
	return cmd
}
