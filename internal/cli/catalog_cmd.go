package cli

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/PhaseGuide/internal/catalog"
	"github.com/BTreeMap/PhaseGuide/internal/models"
	"github.com/spf13/cobra"
)

func newCatalogCmd(app *App) *cobra.Command {
	var (
		phase  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the intervention catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := app.loadCatalog()
			if err != nil {
				return err
			}
			interventions := cat.All()
			if phase != "" {
				p, err := models.ParsePhase(phase)
				if err != nil {
					return err
				}
				interventions = cat.ForPhase(p)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), interventions)
			}
			for _, iv := range interventions {
				fmt.Fprintf(cmd.OutOrStdout(), "%-32s %3d min  %-24s %s\n", iv.Title, iv.DurationMinutes, phaseList(iv.PhaseTags), iv.Location)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&phase, "phase", "", "only interventions tagged with this phase")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.AddCommand(newCatalogValidateCmd())
	return cmd
}

func newCatalogValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a catalog file for errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d interventions OK\n", args[0], cat.Len())
			return nil
		},
	}
}

func phaseList(phases []models.Phase) string {
	names := make([]string, len(phases))
	for i, p := range phases {
		names[i] = string(p)
	}
	return strings.Join(names, ",")
}
