package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/haproxy-translate/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		dbPath string
		limit  int
		keep   int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded translation runs",
		Long: `History lists the runs recorded by translate --history and watch --history,
newest first.`,
		Example: `  # Last 20 runs
  haproxy-translate history --db .haproxy-translate/history.db

  # Everything, as JSON
  haproxy-translate history --db history.db --limit 0 --json

  # Drop all but the newest 100 runs
  haproxy-translate history --db history.db --keep 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if !cmd.Flags().Changed("db") {
				s, err := loadSettings()
				if err != nil {
					return err
				}
				dbPath = s.HistoryDB
			}
			if dbPath == "" {
				return fmt.Errorf("no history database: set --db or history_db in the settings file")
			}

			store, err := stores.Open(ctx, dbPath)
			if err != nil {
				return fmt.Errorf("failed to open history: %w", err)
			}
			defer store.Close()

			if keep > 0 {
				removed, err := store.Prune(ctx, keep)
				if err != nil {
					return err
				}
				if removed > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "pruned %d old runs\n", removed)
				}
			}

			rows, err := store.List(ctx, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tSTATUS\tSOURCE\tERRORS\tWARNINGS\tDURATION\tID")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					r.StartedAt.Local().Format(time.RFC3339),
					r.Status,
					r.SourcePath,
					r.ErrorCount,
					r.WarningCount,
					r.Duration,
					r.ID,
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "history database (default history_db from settings)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to show; 0 shows all")
	cmd.Flags().IntVar(&keep, "keep", 0, "delete all but the newest N runs before listing")

	return cmd
}
