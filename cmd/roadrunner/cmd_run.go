package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/nvandessel/roadrunner/internal/config"
	"github.com/nvandessel/roadrunner/internal/constants"
	"github.com/nvandessel/roadrunner/internal/engine"
	"github.com/nvandessel/roadrunner/internal/logging"
	"github.com/nvandessel/roadrunner/internal/metrics"
	"github.com/nvandessel/roadrunner/internal/pathutil"
	"github.com/nvandessel/roadrunner/internal/runner"
	"github.com/nvandessel/roadrunner/internal/store"
	"github.com/nvandessel/roadrunner/internal/trajectory"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Play episodes with a baseline policy",
		Long: `Play episodes of the simulation with a fixed policy and print a summary.

Unset flags fall back to ~/.roadrunner/config.yaml and ROADRUNNER_* variables.

Examples:
  roadrunner run --episodes 100 --policy greedy
  roadrunner run --lanes 5 --spawn-count 2 --seed 7 --record
  roadrunner run --policy random --trajectory out.arrow --metrics metrics.txt`,
		RunE: runEpisodes,
	}

	cmd.Flags().Int("episodes", 0, "Number of episodes to play")
	cmd.Flags().String("policy", "", "Policy: hold, random or greedy")
	cmd.Flags().Uint64("seed", 0, "Seed for the engine and policy (0 picks one)")
	cmd.Flags().Int("lanes", 0, "Number of lanes")
	cmd.Flags().Float64("speed", 0, "Obstacle speed per tick")
	cmd.Flags().Float64("spawn-prob", 0, "Per-tick spawn probability (negative disables spawning, values above 1 act as --spawn-count)")
	cmd.Flags().Int("spawn-count", 0, "Obstacles spawned on distinct lanes every tick")
	cmd.Flags().Int("max-steps", 0, "Episode step limit (0 derives it from the speed)")
	cmd.Flags().Bool("record", false, "Record episodes in the history store")
	cmd.Flags().String("trajectory", "", "Write every transition to this Arrow IPC file (must be under the working, temp or store directory)")
	cmd.Flags().String("metrics", "", "Write Prometheus text metrics to this file (must be under the working, temp or store directory)")

	return cmd
}

// runOutput is the JSON form of a run.
type runOutput struct {
	Seed uint64 `json:"seed"`
	runner.Summary
}

func runEpisodes(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")

	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	envCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}

	seed := cfg.Runner.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	env, err := engine.New(envCfg, engine.WithSeed(seed))
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	policy, err := runner.NewPolicy(cfg.Runner.Policy, seed)
	if err != nil {
		return err
	}

	storeDir, err := cfg.StoreDir()
	if err != nil {
		return err
	}

	tracer := logging.NewTraceLogger(storeDir, cfg.Logging.Level)
	defer tracer.Close()

	opts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithTracer(tracer),
		runner.WithSeed(seed),
	}

	record, _ := cmd.Flags().GetBool("record")
	if record {
		episodes, err := store.NewSQLiteEpisodeStore(storeDir)
		if err != nil {
			return fmt.Errorf("failed to open episode store: %w", err)
		}
		defer episodes.Close()
		opts = append(opts, runner.WithStore(episodes))
	}

	outputDirs, err := pathutil.DefaultOutputDirs(storeDir)
	if err != nil {
		return err
	}

	metricsPath, _ := cmd.Flags().GetString("metrics")
	var collector *metrics.Collector
	if metricsPath != "" {
		// Checked now so a bad path fails before any episode is played.
		if err := outputDirs.Check(metricsPath); err != nil {
			return fmt.Errorf("invalid metrics file: %w", err)
		}
		collector = metrics.NewCollector("")
		opts = append(opts, runner.WithMetrics(collector))
	}

	trajectoryPath, _ := cmd.Flags().GetString("trajectory")
	var traj *trajectory.Writer
	if trajectoryPath != "" {
		f, err := outputDirs.Create(trajectoryPath)
		if err != nil {
			return fmt.Errorf("failed to create trajectory file: %w", err)
		}
		defer f.Close()

		traj, err = trajectory.NewWriter(f, 0)
		if err != nil {
			return err
		}
		opts = append(opts, runner.WithTransitionSink(traj))
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logger.Info("interrupted, finishing current episode")
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Debug("starting run",
		"policy", policy.Name(),
		"episodes", cfg.Runner.Episodes,
		"seed", seed,
		"lanes", envCfg.Lanes,
		"spawn", env.Config().Spawn.String(),
		"max_steps", env.Config().MaxSteps)

	summary, runErr := runner.New(env, policy, opts...).Run(ctx, cfg.Runner.Episodes)

	if traj != nil {
		if err := traj.Close(); err != nil && runErr == nil {
			runErr = err
		}
	}
	if collector != nil {
		if err := writeMetricsFile(metricsPath, outputDirs, collector); err != nil && runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		return runErr
	}

	if jsonOut {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(runOutput{Seed: seed, Summary: summary})
	}
	printSummary(cmd.OutOrStdout(), seed, summary)
	return nil
}

// applyRunFlags overrides configuration with explicitly set flags.
func applyRunFlags(cmd *cobra.Command, cfg *config.RoadrunnerConfig) {
	flags := cmd.Flags()
	if flags.Changed("episodes") {
		cfg.Runner.Episodes, _ = flags.GetInt("episodes")
	}
	if flags.Changed("policy") {
		cfg.Runner.Policy, _ = flags.GetString("policy")
	}
	if flags.Changed("seed") {
		cfg.Runner.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("lanes") {
		cfg.Env.Lanes, _ = flags.GetInt("lanes")
	}
	if flags.Changed("speed") {
		cfg.Env.BaseSpeed, _ = flags.GetFloat64("speed")
	}
	if flags.Changed("spawn-prob") {
		cfg.Env.SpawnProbability, _ = flags.GetFloat64("spawn-prob")
		cfg.Env.SpawnCount = 0
	}
	if flags.Changed("spawn-count") {
		cfg.Env.SpawnCount, _ = flags.GetInt("spawn-count")
	}
	if flags.Changed("max-steps") {
		cfg.Env.MaxSteps, _ = flags.GetInt("max-steps")
	}
}

func writeMetricsFile(path string, dirs pathutil.OutputDirs, c *metrics.Collector) error {
	f, err := dirs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	if err := c.WriteText(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printSummary(w io.Writer, seed uint64, s runner.Summary) {
	fmt.Fprintf(w, "Policy %s, %d episodes (seed %d)\n\n", s.Policy, s.Episodes, seed)
	fmt.Fprintf(w, "  return:     mean %.2f, std %.2f, min %.0f, max %.0f\n", s.MeanReturn, s.StdReturn, s.MinReturn, s.MaxReturn)
	fmt.Fprintf(w, "  mean steps: %.2f\n", s.MeanSteps)
	fmt.Fprintf(w, "  outcomes:   %s\n", formatOutcomes(s.Outcomes))
	fmt.Fprintf(w, "  duration:   %v\n", s.Duration)
}

// formatOutcomes renders outcome counts in a stable order.
func formatOutcomes(counts map[constants.Outcome]int) string {
	if len(counts) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(counts))
	for o := range counts {
		keys = append(keys, string(o))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[constants.Outcome(k)]))
	}
	return strings.Join(parts, " ")
}
