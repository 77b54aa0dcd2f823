package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var rerankSince time.Duration

var rerankCmd = &cobra.Command{
	Use:   "rerank [period...]",
	Short: "Re-run the ranker for the given periods, or for every recently active period",
	Example: `  journal-gamification rerank 2026-10
  journal-gamification rerank --since 24h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		periods := args
		if len(periods) == 0 {
			var since time.Time
			if rerankSince > 0 {
				since = time.Now().Add(-rerankSince)
			}
			if periods, err = rt.engine.ActivePeriods(ctx, since); err != nil {
				return err
			}
		}
		for _, p := range periods {
			n, err := rt.engine.RerankPeriod(ctx, p)
			if err != nil {
				return fmt.Errorf("rerank %s: %w", p, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows ranked\n", p, n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rerankCmd)
	rerankCmd.Flags().DurationVar(&rerankSince, "since", 0, "only periods with score changes in this window (0 = all)")
}
