package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/BTreeMap/PhaseGuide/internal/cli"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run wires logging and configuration, then executes the command line.
// It returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// Initialize structured logger before anything else logs
	if err := cli.InitializeLogger(stderr, os.Getenv("PHASEGUIDE_LOG_LEVEL")); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	// Load environment configuration
	config := cli.LoadEnvironmentConfig()

	root := cli.NewRootCmd(config)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	slog.Debug("Bootstrapping PhaseGuide", "args", args, "state_dir", config.StateDir, "dsn_set", config.DatabaseURL != "")
	if err := root.ExecuteContext(ctx); err != nil {
		slog.Debug("PhaseGuide command failed", "error", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
