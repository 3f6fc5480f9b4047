package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"proxyfarm/internal/config"
	"proxyfarm/internal/decide"
	"proxyfarm/internal/editor"
	"proxyfarm/internal/encoder"
	"proxyfarm/internal/logging"
	"proxyfarm/internal/media/ffprobe"
	"proxyfarm/internal/preflight"
	"proxyfarm/internal/progress"
	"proxyfarm/internal/queue"
	"proxyfarm/internal/stitch"
	"proxyfarm/internal/worker"
	"proxyfarm/internal/workflow"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	var (
		timeline       string
		manifestPath   string
		localWorkers   int
		nonInteractive bool
	)

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Encode and link proxies for the current timeline",
		Long: `Read the editor's clip manifest, reconcile the timeline against proxies
that already exist, dispatch the remaining encodes to the worker farm, and link
every finished proxy back to its clip.

Questions about existing or offline proxies are asked on the terminal. When
stdin is not a terminal, or with --yes, the [reconcile] section of the config
answers them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if v := strings.TrimSpace(timeline); v != "" {
				cfg.Editor.Timeline = v
			}
			if v := strings.TrimSpace(manifestPath); v != "" {
				expanded, err := config.ExpandPath(v)
				if err != nil {
					return err
				}
				cfg.Editor.ManifestPath = expanded
			}
			if localWorkers < 0 {
				return fmt.Errorf("--local-workers must be zero or more")
			}

			logger, err := ctx.logger("coordinator.log")
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := checkPreflight(runCtx, cmd, cfg, preflight.RoleCoordinator); err != nil {
				return err
			}
			if localWorkers > 0 {
				if err := checkPreflight(runCtx, cmd, cfg, preflight.RoleWorker); err != nil {
					return err
				}
			}

			manifest, err := editor.Open(cfg.Editor.ManifestPath, cfg.Editor.LinksPath, logger)
			if err != nil {
				return err
			}

			var decider decide.Decider = decide.PolicyFromConfig(cfg.Reconcile)
			if !nonInteractive && isTerminal(cmd.InOrStdin()) {
				decider = decide.NewPrompt(cmd.InOrStdin(), cmd.ErrOrStderr())
			}

			return ctx.withQueueStore(func(store *queue.Store) error {
				opts := []workflow.Option{
					workflow.WithProber(ffprobe.Prober{Binary: cfg.FFprobeBinary()}),
				}
				if !ctx.JSONMode() && isTerminal(cmd.ErrOrStderr()) {
					opts = append(opts, workflow.WithProgress(progressPrinter(cmd)))
				}
				coordinator := workflow.New(cfg, store, manifest, decider, logger, opts...)

				report, err := runWithLocalWorkers(runCtx, cfg, store, localWorkers, logger, coordinator.Run)
				if report != nil {
					if rerr := renderReport(cmd, ctx.JSONMode(), report); rerr != nil {
						return errors.Join(err, rerr)
					}
				}
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&timeline, "timeline", "t", "", "Timeline to process (defaults to editor.timeline)")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Clip manifest path (defaults to editor.manifest_path)")
	cmd.Flags().IntVar(&localWorkers, "local-workers", 0, "Run N workers in this process alongside the coordinator")
	cmd.Flags().BoolVarP(&nonInteractive, "yes", "y", false, "Answer reconciliation questions from config instead of prompting")
	return cmd
}

// runWithLocalWorkers runs the coordinator while n in-process workers drain
// the queue. Workers stop once the coordinator returns.
func runWithLocalWorkers(
	ctx context.Context,
	cfg *config.Config,
	store *queue.Store,
	n int,
	logger *slog.Logger,
	run func(context.Context) (*workflow.Report, error),
) (*workflow.Report, error) {
	if n == 0 {
		return run(ctx)
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	var g errgroup.Group
	base := strings.TrimSpace(cfg.Worker.Name)
	for i := range n {
		local := *cfg
		local.Worker.Name = fmt.Sprintf("%s-local-%d", base, i+1)
		w := worker.New(&local, store, store,
			encoder.New(cfg.FFmpegBinary(), logger),
			stitch.New(cfg.FFmpegBinary(), logger),
			logger,
		)
		g.Go(func() error { return w.Run(workerCtx) })
	}

	report, err := run(ctx)
	stopWorkers()
	if werr := g.Wait(); werr != nil {
		logging.WarnWithContext(logger, "local worker stopped with error", "local_worker_failed",
			logging.Error(werr),
			logging.String(logging.FieldImpact, "batch result unaffected"),
		)
	}
	return report, err
}

func checkPreflight(ctx context.Context, cmd *cobra.Command, cfg *config.Config, role preflight.Role) error {
	results := preflight.RunAll(ctx, cfg, role)
	if err := preflight.Failed(results); err != nil {
		for _, r := range results {
			if !r.Passed {
				fmt.Fprintf(cmd.ErrOrStderr(), "preflight: %s: %s\n", r.Name, r.Detail)
			}
		}
		return err
	}
	return nil
}

func progressPrinter(cmd *cobra.Command) func(progress.Snapshot) {
	out := cmd.ErrOrStderr()
	sampler := logging.NewProgressSampler(1)
	return func(s progress.Snapshot) {
		if !sampler.ShouldLog(s.Percent, "") && s.Done() < s.Total {
			return
		}
		line := fmt.Sprintf("\r[%5.1f%%] %d/%d tasks done", s.Percent, s.Done(), s.Total)
		if s.Failed > 0 {
			line += fmt.Sprintf(", %d failed", s.Failed)
		}
		if len(s.ActiveWorkers) > 0 {
			line += " | " + strings.Join(s.ActiveWorkers, ", ")
		}
		fmt.Fprint(out, line+"\x1b[K")
		if s.Done() == s.Total {
			fmt.Fprintln(out)
		}
	}
}
