package cmd

import (
	"errors"
	"fmt"

	"journal-gamification/services"
	"journal-gamification/utils"

	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <period...>",
	Short: "Rerank periods and upload their leaderboard snapshots to R2",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		r2cfg := rt.cfg.R2.Client()
		if !r2cfg.Enabled() {
			return errors.New("R2 is not configured: set CLOUDFLARE_ACCOUNT_ID and R2_BUCKET_NAME")
		}
		store, err := utils.NewR2Client(ctx, r2cfg)
		if err != nil {
			return err
		}
		archiver := services.NewArchiver(rt.engine, store, rt.logger)
		for _, p := range args {
			url, err := archiver.Archive(ctx, p)
			if err != nil {
				return fmt.Errorf("archive %s: %w", p, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", p, url)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
}
