package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/nvandessel/roadrunner/internal/config"
	"github.com/nvandessel/roadrunner/internal/constants"
	"github.com/nvandessel/roadrunner/internal/pathutil"
	"github.com/nvandessel/roadrunner/internal/store"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded episodes",
		Long: `List episodes recorded with 'roadrunner run --record' or through the MCP server.

Examples:
  roadrunner history                      # 20 most recent episodes
  roadrunner history --policy greedy --outcome collision
  roadrunner history stats
  roadrunner history export --output episodes.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			opts, err := historyListOptions(cmd)
			if err != nil {
				return err
			}

			episodes, err := openHistoryStore()
			if err != nil {
				return err
			}
			defer episodes.Close()

			list, err := episodes.ListEpisodes(commandContext(cmd), opts)
			if err != nil {
				return fmt.Errorf("failed to list episodes: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"episodes": list,
					"count":    len(list),
				})
			}

			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No episodes recorded yet.")
				fmt.Fprintln(cmd.OutOrStdout(), "\nUse 'roadrunner run --record' to record episodes.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPOLICY\tLANES\tSTEPS\tRETURN\tOUTCOME\tCREATED")
			for _, ep := range list {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.0f\t%s\t%s\n",
					shortID(ep.ID), ep.Policy, ep.Lanes, ep.Steps, ep.Return, ep.Outcome,
					ep.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}

	addHistoryFilterFlags(cmd)
	cmd.Flags().Int("limit", 20, "Maximum number of episodes (0 for all)")

	cmd.AddCommand(
		newHistoryStatsCmd(),
		newHistoryExportCmd(),
	)

	return cmd
}

func newHistoryStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Aggregate recorded episodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			episodes, err := openHistoryStore()
			if err != nil {
				return err
			}
			defer episodes.Close()

			stats, err := episodes.Stats(commandContext(cmd))
			if err != nil {
				return fmt.Errorf("failed to compute stats: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Episodes:    %d\n", stats.Episodes)
			fmt.Fprintf(out, "Mean return: %.2f\n", stats.MeanReturn)
			fmt.Fprintf(out, "Best return: %.0f\n", stats.BestReturn)
			fmt.Fprintf(out, "Outcomes:    %s\n", formatOutcomes(stats.ByOutcome))
			return nil
		},
	}
}

func newHistoryExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded episodes as JSONL",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			output, _ := cmd.Flags().GetString("output")

			opts, err := historyListOptions(cmd)
			if err != nil {
				return err
			}

			episodes, err := openHistoryStore()
			if err != nil {
				return err
			}
			defer episodes.Close()

			w := cmd.OutOrStdout()
			if output != "" {
				dirs, err := exportDirs()
				if err != nil {
					return err
				}
				f, err := dirs.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create export file: %w", err)
				}
				defer f.Close()
				w = f
			}

			n, err := store.ExportJSONL(commandContext(cmd), episodes, opts, w)
			if err != nil {
				return fmt.Errorf("failed to export episodes: %w", err)
			}

			if output == "" {
				return nil
			}
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"exported": n,
					"output":   output,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d episodes to %s\n", n, output)
			return nil
		},
	}

	addHistoryFilterFlags(cmd)
	cmd.Flags().String("output", "", "Write to this file instead of stdout (must be under the working, temp or store directory)")

	return cmd
}

func addHistoryFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("policy", "", "Only episodes played by this policy")
	cmd.Flags().String("outcome", "", "Only episodes with this outcome (collision, step_limit, aborted)")
}

// historyListOptions builds store filters from the command's flags.
func historyListOptions(cmd *cobra.Command) (store.ListOptions, error) {
	policy, _ := cmd.Flags().GetString("policy")
	outcome, _ := cmd.Flags().GetString("outcome")

	opts := store.ListOptions{
		Policy:  policy,
		Outcome: constants.Outcome(outcome),
	}
	if outcome != "" && !opts.Outcome.Valid() {
		return opts, fmt.Errorf("invalid outcome: %s (valid: collision, step_limit, aborted)", outcome)
	}
	if cmd.Flags().Lookup("limit") != nil {
		opts.Limit, _ = cmd.Flags().GetInt("limit")
	}
	return opts, nil
}

// openHistoryStore opens the SQLite episode store in the configured directory.
func openHistoryStore() (*store.SQLiteEpisodeStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	dir, err := cfg.StoreDir()
	if err != nil {
		return nil, err
	}
	episodes, err := store.NewSQLiteEpisodeStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open episode store: %w", err)
	}
	return episodes, nil
}

// exportDirs returns the directories an export may be written to.
func exportDirs() (pathutil.OutputDirs, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	dir, err := cfg.StoreDir()
	if err != nil {
		return nil, err
	}
	return pathutil.DefaultOutputDirs(dir)
}

// shortID truncates a UUID for table output.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
