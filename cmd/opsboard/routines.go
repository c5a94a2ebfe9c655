package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRoutinesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "routines",
		Short:             "Daily WORK and WORKOUT log",
		PersistentPreRunE: a.openSheets,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every routine entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.routines.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No routine entries yet.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  %-7s  %s\n", e.Date, e.Type, e.Note)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "record TYPE NOTE",
		Short: "Record today's entry for TYPE (WORK or WORKOUT)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.routines.Record(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("✅ Recorded %s for %s\n", e.Type, e.Date)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "edit TYPE NOTE",
		Short: "Replace the note of today's entry for TYPE",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.routines.Edit(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("✅ Updated %s for %s\n", e.Type, e.Date)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Show today's status and the trailing week",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := a.routines.Summary(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Today (%s)\n", sum.Today)
			fmt.Printf("  WORK     %s\n", check(sum.Work))
			fmt.Printf("  WORKOUT  %s\n", check(sum.Workout))
			fmt.Printf("Since %s\n", sum.WindowStart)
			fmt.Printf("  WORK     %d/7 days\n", sum.WorkDays)
			fmt.Printf("  WORKOUT  %d/7 days\n", sum.WorkoutDays)
			return nil
		},
	})

	return cmd
}

func check(done bool) string {
	if done {
		return "done"
	}
	return "-"
}
