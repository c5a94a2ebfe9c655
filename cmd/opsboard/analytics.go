package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/digitaldrywood/opsboard/internal/analytics"
)

func newAnalyticsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "analytics",
		Short:             "Channel revenue reports",
		PersistentPreRunE: a.openSheets,
	}

	var q analytics.Query
	summary := &cobra.Command{
		Use:   "summary",
		Short: "Totals per channel and month, with a revenue health check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := a.analytics.Summary(cmd.Context(), q)
			if err != nil {
				return err
			}
			if sum.Days == 0 {
				fmt.Println("No daily rows match.")
				return nil
			}
			fmt.Printf("Total  views %s  revenue ₩%s  RPM %.1f  (%d rows)\n",
				humanize.Comma(sum.Views), humanize.Comma(sum.Revenue), sum.RPM, sum.Days)

			fmt.Println("\nChannels")
			for _, c := range sum.Channels {
				fmt.Printf("  %-20s views %12s  revenue ₩%12s  RPM %8.1f\n",
					c.Channel, humanize.Comma(c.Views), humanize.Comma(c.Revenue), c.RPM)
			}
			fmt.Println("\nMonths")
			for _, m := range sum.Months {
				fmt.Printf("  %s  views %12s  revenue ₩%12s  RPM %8.1f\n",
					m.Month, humanize.Comma(m.Views), humanize.Comma(m.Revenue), m.RPM)
			}

			if sum.Health != nil {
				fmt.Printf("\nRPM 7d %.1f vs 28d %.1f\n", sum.Health.RPM7, sum.Health.RPM28)
				for _, w := range sum.Health.Warnings {
					fmt.Printf("⚠️  %s\n", w)
				}
			}
			return nil
		},
	}
	summary.Flags().StringVar(&q.From, "from", "", "first date (YYYY-MM-DD)")
	summary.Flags().StringVar(&q.To, "to", "", "last date (YYYY-MM-DD)")
	summary.Flags().StringVar(&q.Channel, "channel", "", "channel id or name")

	backfill := &cobra.Command{
		Use:   "backfill",
		Short: "Fill missing channel ids in the daily sheet from the channel registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.analytics.Backfill(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Backfilled %s rows\n", humanize.Comma(int64(n)))
			return nil
		},
	}

	cmd.AddCommand(summary, backfill)
	return cmd
}
