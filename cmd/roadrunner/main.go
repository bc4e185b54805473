package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nvandessel/roadrunner/internal/config"
	"github.com/nvandessel/roadrunner/internal/logging"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "roadrunner",
		Short: "RoadRunner - a lane-dodging traffic simulation",
		Long: `roadrunner runs a discrete-time, multi-lane traffic-dodging simulation.

An agent holds its lane or moves left or right each tick while obstacles
spawn at the far end of the road and advance toward it. Episodes end on
collision or at the step limit.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newHistoryCmd(),
		newConfigCmd(),
		newServeCmd(),
	)

	return rootCmd
}

// loadConfig loads the configuration and a logger writing to w.
func loadConfig(w io.Writer) (*config.RoadrunnerConfig, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logging.NewLogger(cfg.Logging.Level, w), nil
}

// commandContext returns the command's context, or Background when the
// command was invoked outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
