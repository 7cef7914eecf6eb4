package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/BTreeMap/PhaseGuide/internal/guidecache"
	"github.com/BTreeMap/PhaseGuide/internal/lockfile"
	"github.com/spf13/cobra"
)

func newSplitCmd(app *App) *cobra.Command {
	var in string

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Import a combined text+audio guide file into the split guide store",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(in)
			if err != nil {
				return fmt.Errorf("opening combined guides: %w", err)
			}
			defer f.Close()

			combined, err := guidecache.ReadCombined(f)
			if err != nil {
				return err
			}
			res := guidecache.Split(combined, time.Now())

			lock, err := lockfile.AcquireLock(app.cfg.StateDir, "split")
			if err != nil {
				return err
			}
			defer lock.Release()

			st, err := app.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			meta, err := guidecache.New(st).Commit(cmd.Context(), res.Text, res.Audio)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "split %d entries: %d text, %d audio guides\n", len(combined), len(res.Text), len(res.Audio))
			for _, title := range res.Skipped {
				fmt.Fprintf(out, "  skipped %q: missing text or audio\n", title)
			}
			fmt.Fprintf(out, "store written at %s\n", meta.GeneratedAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "combined guide JSON file")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func newExportCmd(app *App) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the guide store as a single combined JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			cache := guidecache.New(st)
			if err := cache.Load(cmd.Context()); err != nil {
				return err
			}
			combined := guidecache.Merge(cache.TextGuides(), cache.AudioGuides())

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("creating export file: %w", err)
				}
				defer f.Close()
				w = f
			}
			return guidecache.WriteCombined(w, combined, time.Now())
		},
	}

	cmd.Flags().StringVar(&out, "out", "-", "output file, - for stdout")
	return cmd
}
