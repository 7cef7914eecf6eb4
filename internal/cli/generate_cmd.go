package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/BTreeMap/PhaseGuide/internal/guidecache"
	"github.com/BTreeMap/PhaseGuide/internal/lockfile"
	"github.com/BTreeMap/PhaseGuide/internal/pipeline"
	"github.com/spf13/cobra"
)

type generateOptions struct {
	force   bool
	noAudio bool
	delay   time.Duration
	only    []string
}

func newGenerateCmd(app *App) *cobra.Command {
	opts := generateOptions{delay: app.cfg.GenerationDelay}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate text and audio guides for uncached catalog interventions",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := app.generate(cmd.Context(), opts)
			printReport(cmd.OutOrStdout(), report)
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "regenerate guides that are already cached")
	cmd.Flags().BoolVar(&opts.noAudio, "no-audio", false, "skip speech synthesis")
	cmd.Flags().DurationVar(&opts.delay, "delay", app.cfg.GenerationDelay, "pause between interventions (overrides $GENERATION_DELAY)")
	cmd.Flags().StringSliceVar(&opts.only, "only", nil, "limit the run to these intervention titles")
	return cmd
}

// generate runs one pipeline pass under the state directory lock.
func (a *App) generate(ctx context.Context, opts generateOptions) (pipeline.Report, error) {
	lock, err := lockfile.AcquireLock(a.cfg.StateDir, "generate")
	if err != nil {
		return pipeline.Report{}, err
	}
	defer lock.Release()

	cat, err := a.loadCatalog()
	if err != nil {
		return pipeline.Report{}, err
	}
	interventions := cat.All()
	if len(opts.only) > 0 {
		interventions = nil
		for _, title := range opts.only {
			iv, ok := cat.Lookup(title)
			if !ok {
				return pipeline.Report{}, fmt.Errorf("intervention %q is not in the catalog", title)
			}
			interventions = append(interventions, iv)
		}
	}

	st, err := a.openStore()
	if err != nil {
		return pipeline.Report{}, err
	}
	defer st.Close()

	pipelineOpts := []pipeline.Option{
		pipeline.WithDelay(opts.delay),
		pipeline.WithForce(opts.force),
	}
	var synth pipeline.AudioSynthesizer
	if opts.noAudio {
		pipelineOpts = append(pipelineOpts, pipeline.WithoutAudio())
	} else {
		synth = a.synthesizer()
	}

	p := pipeline.New(a.textGenerator(), synth, guidecache.New(st), pipelineOpts...)
	return p.Run(ctx, interventions)
}

func printReport(w io.Writer, r pipeline.Report) {
	if r.RunID == "" {
		return
	}
	fmt.Fprintf(w, "run %s\n", r.RunID)
	fmt.Fprintf(w, "  generated:      %d\n", len(r.Generated))
	fmt.Fprintf(w, "  skipped:        %d (already cached)\n", len(r.Skipped))
	fmt.Fprintf(w, "  text fallbacks: %d\n", len(r.TextFallbacks))
	fmt.Fprintf(w, "  audio missing:  %d\n", len(r.AudioMissing))
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(w, "  duration:       %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	if r.Metadata.Version != "" {
		fmt.Fprintf(w, "  store:          %d guides, version %s\n", r.Metadata.TotalInterventions, r.Metadata.Version)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  ! %s\n", f.Error())
	}
}
