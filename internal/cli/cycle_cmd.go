package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/BTreeMap/PhaseGuide/internal/cycle"
	"github.com/BTreeMap/PhaseGuide/internal/guidecache"
	"github.com/BTreeMap/PhaseGuide/internal/models"
	"github.com/BTreeMap/PhaseGuide/internal/recommend"
	"github.com/BTreeMap/PhaseGuide/internal/store"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

// cycleFlags are shared by the phase and recommend commands.
type cycleFlags struct {
	lastPeriod  string
	cycleLength int
	today       string
	asJSON      bool
}

func (f *cycleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.lastPeriod, "last-period", "", "first day of the last period (YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.cycleLength, "cycle-length", cycle.DefaultCycleLength, "cycle length in days")
	cmd.Flags().StringVar(&f.today, "today", "", "evaluate as of this date instead of today (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("last-period")
}

func (f *cycleFlags) dates() (last, now time.Time, err error) {
	last, err = time.ParseInLocation(dateLayout, f.lastPeriod, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --last-period %q: %w", f.lastPeriod, err)
	}
	now = time.Now()
	if f.today != "" {
		now, err = time.ParseInLocation(dateLayout, f.today, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --today %q: %w", f.today, err)
		}
	}
	return last, now, nil
}

func newPhaseCmd(app *App) *cobra.Command {
	var flags cycleFlags

	cmd := &cobra.Command{
		Use:   "phase",
		Short: "Show the cycle phase for a last-period date",
		RunE: func(cmd *cobra.Command, args []string) error {
			last, now, err := flags.dates()
			if err != nil {
				return err
			}
			info, err := cycle.DetectPhase(last, flags.cycleLength, now)
			if err != nil {
				return err
			}
			if flags.asJSON {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			printCycleInfo(cmd.OutOrStdout(), info, flags.cycleLength)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newRecommendCmd(app *App) *cobra.Command {
	var (
		flags     cycleFlags
		withAudio bool
	)

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend interventions for the current cycle phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			last, now, err := flags.dates()
			if err != nil {
				return err
			}
			cat, err := app.loadCatalog()
			if err != nil {
				return err
			}
			st, err := app.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			cache := guidecache.New(st)
			if withAudio {
				err = cache.Load(cmd.Context())
			} else {
				err = cache.LoadText(cmd.Context())
			}
			if err != nil && !errors.Is(err, store.ErrCacheMissing) {
				return err
			}

			rec, err := recommend.NewService(cat, cache).Recommend(last, flags.cycleLength, now)
			if err != nil {
				return err
			}
			if flags.asJSON {
				return writeJSON(cmd.OutOrStdout(), rec)
			}
			printRecommendation(cmd.OutOrStdout(), rec, flags.cycleLength, withAudio)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&withAudio, "audio", false, "also load audio guides and report which have narration")
	return cmd
}

func printCycleInfo(w io.Writer, info models.CycleInfo, cycleLength int) {
	fmt.Fprintf(w, "Phase:                   %s\n", info.Phase)
	fmt.Fprintf(w, "Day of cycle:            %d of %d\n", info.DayOfCycle, cycleLength)
	fmt.Fprintf(w, "Days until next period:  %d\n", info.DaysUntilNextPeriod)
	fmt.Fprintf(w, "Estimated next period:   %s\n", info.EstimatedNextPeriod.Format(dateLayout))
	if info.EstimatedOvulation != nil {
		fmt.Fprintf(w, "Estimated ovulation:     %s\n", info.EstimatedOvulation.Format(dateLayout))
	}
}

func printRecommendation(w io.Writer, rec recommend.Recommendation, cycleLength int, withAudio bool) {
	printCycleInfo(w, rec.Cycle, cycleLength)
	fmt.Fprintf(w, "\n%d interventions for the %s phase:\n", len(rec.Items), rec.Cycle.Phase)
	for _, item := range rec.Items {
		iv := item.Intervention
		fmt.Fprintf(w, "\n* %s (%d min, %s)\n  %s\n", iv.Title, iv.DurationMinutes, iv.Location, iv.Description)
		if item.Guide == nil {
			fmt.Fprintln(w, "  guide: not generated yet")
			continue
		}
		fmt.Fprintf(w, "  guide: %d steps, about %ds\n", len(item.Guide.Steps), item.Guide.EstimatedTimeSeconds)
		for _, step := range item.Guide.Steps {
			fmt.Fprintf(w, "    %d. %s\n", step.StepNumber, step.Instruction)
		}
		if withAudio {
			fmt.Fprintf(w, "  narration: %t\n", item.HasAudio)
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
