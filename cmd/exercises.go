package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newExercisesCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "exercises",
		Short: "List the exercises a viewer can select",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := newRegistry(a.cfg)
			if err != nil {
				return fmt.Errorf("failed to load exercises: %w", err)
			}
			list := registry.List()

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tRULES\tREPS")
			for _, c := range list {
				reps := "-"
				if c.Counts() {
					reps = c.Phases.Gate
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.ID, c.DisplayName, len(c.Rules), reps)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
