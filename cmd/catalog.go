package cmd

import (
	"fmt"
	"text/tabwriter"

	"journal-gamification/services"

	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog [file]",
	Short: "Validate a badge catalog file (default: the built-in catalog) and print it",
	Long: `catalog parses and normalizes a badge catalog without touching the database.
Badges are seeded insert-if-absent when any other command starts, so editing an
existing badge in the file has no effect on an already seeded database.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		defs, err := services.LoadCatalog(path)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tKIND\tTHRESHOLD\tRARITY\tXP")
		for _, d := range defs {
			kind := string(d.RequirementKind)
			if !services.KnownRequirementKind(d.RequirementKind) {
				kind += " (unknown, skipped)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\n", d.ID, d.Name, kind, d.Threshold, d.Rarity, d.XPReward)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}
