// Package cli implements the phaseguide command line.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the top-level "phaseguide" command. cfg supplies the
// defaults for the global flags.
func NewRootCmd(cfg Config) *cobra.Command {
	app := &App{cfg: cfg}

	root := &cobra.Command{
		Use:           "phaseguide",
		Short:         "Cycle-phase aware self-care recommendations with generated guides",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return SetLogLevel(app.cfg.LogLevel)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.cfg.StateDir, "state-dir", cfg.StateDir, "state directory for guides and locks (overrides $PHASEGUIDE_STATE_DIR)")
	flags.StringVar(&app.cfg.DatabaseURL, "db-dsn", cfg.DatabaseURL, "SQLite path or PostgreSQL DSN for the guide store (overrides $DATABASE_URL)")
	flags.StringVar(&app.cfg.CatalogPath, "catalog", cfg.CatalogPath, "intervention catalog file, YAML or JSON (overrides $PHASEGUIDE_CATALOG)")
	flags.StringVar(&app.cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error (overrides $PHASEGUIDE_LOG_LEVEL)")

	root.AddCommand(
		newPhaseCmd(app),
		newRecommendCmd(app),
		newGenerateCmd(app),
		newSplitCmd(app),
		newExportCmd(app),
		newScheduleCmd(app),
		newCatalogCmd(app),
	)

	return root
}
