package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/nvandessel/roadrunner/internal/logging"
	"github.com/nvandessel/roadrunner/internal/mcp"
	"github.com/nvandessel/roadrunner/internal/store"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Run an MCP (Model Context Protocol) server on stdin/stdout so an external
agent can drive the simulation with the roadrunner_reset, roadrunner_step and
roadrunner_observe tools.

Logs go to stderr; stdout carries the protocol.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				cfg.Runner.Seed, _ = cmd.Flags().GetUint64("seed")
			}

			envCfg, err := cfg.EngineConfig()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			storeDir, err := cfg.StoreDir()
			if err != nil {
				return err
			}

			seed := cfg.Runner.Seed
			if seed == 0 {
				seed = rand.Uint64()
			}

			serverCfg := &mcp.Config{
				Name:     "roadrunner",
				Version:  version,
				Engine:   envCfg,
				Seed:     seed,
				AuditDir: storeDir,
				Logger:   logger,
			}

			tracer := logging.NewTraceLogger(storeDir, cfg.Logging.Level)
			defer tracer.Close()
			serverCfg.Tracer = tracer

			record, _ := cmd.Flags().GetBool("record")
			if record {
				episodes, err := store.NewSQLiteEpisodeStore(storeDir)
				if err != nil {
					return fmt.Errorf("failed to open episode store: %w", err)
				}
				defer episodes.Close()
				serverCfg.Store = episodes
			}

			server, err := mcp.NewServer(serverCfg)
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			logger.Info("mcp server listening on stdio", "lanes", envCfg.Lanes, "seed", seed, "record", record)
			return server.Run(commandContext(cmd))
		},
	}

	cmd.Flags().Uint64("seed", 0, "Seed for the first episode (0 picks one)")
	cmd.Flags().Bool("record", true, "Record finished episodes in the history store")

	return cmd
}
