package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/llmgate/pkg/config"
	"github.com/pario-ai/llmgate/pkg/tracker"
)

func newHistoryCmd() *cobra.Command {
	var (
		configPath string
		username   string
		limit      int
		summary    bool
		cleanup    bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded inference attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.History.DBPath == "" {
				return errors.New("history is disabled: set history.db_path or LLMGATE_HISTORY_DB")
			}

			tr, err := tracker.New(cfg.History.DBPath, 0)
			if err != nil {
				return err
			}
			defer tr.Close()

			ctx := context.Background()
			out := cmd.OutOrStdout()

			if cleanup {
				if cfg.History.RetentionDays <= 0 {
					return errors.New("history.retention_days must be positive to clean up")
				}
				n, err := tr.Cleanup(ctx, time.Now().AddDate(0, 0, -cfg.History.RetentionDays))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted %d attempts older than %d days.\n", n, cfg.History.RetentionDays)
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

			if summary {
				sums, err := tr.Summary(ctx, username)
				if err != nil {
					return err
				}
				if len(sums) == 0 {
					fmt.Fprintln(out, "No attempts recorded.")
					return nil
				}
				fmt.Fprintln(w, "USER\tREQUESTS\tSUCCESS\tFAILED\tCACHE HITS\tAVG LATENCY (ms)")
				for _, s := range sums {
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.2f\n",
						s.Username, s.RequestCount, s.Successful, s.Failed, s.CacheHits, s.AverageLatencyMs)
				}
				return w.Flush()
			}

			recs, err := tr.Recent(ctx, username, limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintln(out, "No attempts recorded.")
				return nil
			}
			fmt.Fprintln(w, "TIME\tUSER\tOUTCOME\tPROMPT\tRESPONSE\tLATENCY (ms)\tREQUEST ID")
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.2f\t%s\n",
					r.CreatedAt.Format("2006-01-02T15:04:05"), r.Username, r.Outcome,
					r.PromptLength, r.ResponseLength, r.LatencyMs, r.RequestID)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&username, "user", "u", "", "filter by username")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum attempts to list")
	cmd.Flags().BoolVar(&summary, "summary", false, "show per-user totals instead of individual attempts")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "delete attempts older than history.retention_days")
	return cmd
}
