package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mixtape/internal/apiclient"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show batch and task totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				stats, err := client.Statistics(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, stats)
				}
				out := cmd.OutOrStdout()
				if stats.TotalBatches == 0 {
					fmt.Fprintln(out, "No batches yet")
					return nil
				}
				fmt.Fprint(out, renderStatistics(stats))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print statistics as JSON")
	return cmd
}
