package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BTreeMap/PhaseGuide/internal/catalog"
	"github.com/BTreeMap/PhaseGuide/internal/lockfile"
	"github.com/BTreeMap/PhaseGuide/internal/scheduler"
	"github.com/spf13/cobra"
)

func newScheduleCmd(app *App) *cobra.Command {
	var (
		expr         string
		runNow       bool
		watchCatalog bool
		opts         = generateOptions{delay: app.cfg.GenerationDelay}
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Regenerate missing guides on a cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			job := func(ctx context.Context) {
				report, err := app.generate(ctx, opts)
				switch {
				case errors.Is(err, lockfile.ErrLocked):
					slog.Warn("schedule: another run holds the state directory, skipping", "error", err)
				case err != nil:
					slog.Error("schedule: generation run failed", "error", err, "run_id", report.RunID)
				default:
					slog.Info("schedule: generation run complete", "run_id", report.RunID, "generated", len(report.Generated), "failures", len(report.Failures))
				}
			}

			s := scheduler.NewScheduler()
			if err := s.AddJob(ctx, "generate", expr, job); err != nil {
				return err
			}
			if watchCatalog {
				if app.cfg.CatalogPath == "" {
					return fmt.Errorf("--watch-catalog needs a catalog file (--catalog or $PHASEGUIDE_CATALOG)")
				}
				w, err := catalog.NewWatcher(app.cfg.CatalogPath, catalog.DefaultDebounce)
				if err != nil {
					return err
				}
				defer w.Close()
				go w.Run(ctx)
				go func() {
					for c := range w.Updates() {
						slog.Info("schedule: catalog changed, generating new guides", "interventions", c.Len())
						job(ctx)
					}
				}()
			}
			if runNow {
				job(ctx)
			}

			s.Start()
			fmt.Fprintf(cmd.OutOrStdout(), "scheduled %q, next run %s\n", expr, s.Next().Format(time.RFC3339))
			<-ctx.Done()
			s.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&expr, "cron", app.cfg.Schedule, "cron expression (overrides $GENERATION_SCHEDULE)")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run once immediately before waiting for the schedule")
	cmd.Flags().BoolVar(&watchCatalog, "watch-catalog", false, "also generate when the catalog file changes")
	cmd.Flags().BoolVar(&opts.noAudio, "no-audio", false, "skip speech synthesis")
	cmd.Flags().DurationVar(&opts.delay, "delay", app.cfg.GenerationDelay, "pause between interventions (overrides $GENERATION_DELAY)")
	return cmd
}
