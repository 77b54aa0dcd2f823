package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	lbLimit  int
	lbCaller string
)

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard <period>",
	Short: "Print the ranked leaderboard of a period",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		board, err := rt.engine.GetLeaderboard(ctx, args[0], lbLimit, lbCaller)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tUSER\tSCORE")
		for _, e := range board.Entries {
			fmt.Fprintf(w, "%d\t%s\t%d\n", *e.Rank, e.UserID, e.Score)
		}
		if c := board.Caller; c != nil {
			rank := "-"
			if c.Rank != nil {
				rank = fmt.Sprint(*c.Rank)
			}
			fmt.Fprintf(w, "\nyou\t%s\t%d (rank %s)\n", c.UserID, c.Score, rank)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(leaderboardCmd)
	leaderboardCmd.Flags().IntVarP(&lbLimit, "limit", "n", 10, "number of entries (max 100)")
	leaderboardCmd.Flags().StringVar(&lbCaller, "user", "", "also show this user's standing")
}
