package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/digitaldrywood/opsboard/internal/task"
)

func newTasksCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "tasks",
		Short:             "Manage the task tracker",
		PersistentPreRunE: a.openSheets,
	}
	cmd.AddCommand(
		newTasksListCommand(a),
		newTasksAddCommand(a),
		newTasksPatchCommand(a),
		&cobra.Command{
			Use:   "done ID",
			Short: "Mark a task done",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				done := true
				t, err := a.tasks.Patch(cmd.Context(), task.PatchInput{TaskID: args[0], Done: &done})
				if err != nil {
					return err
				}
				fmt.Printf("✅ %s done\n", t.Title)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete ID",
			Short: "Soft-delete a task",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				t, err := a.tasks.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("🗑  %s deleted\n", t.Title)
				return nil
			},
		},
	)
	return cmd
}

func newTasksListCommand(a *app) *cobra.Command {
	var f task.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := a.tasks.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Println("No tasks.")
				return nil
			}
			for _, t := range tasks {
				fmt.Printf("%-22s %-2s %-5s %-10s %s%s\n",
					t.TaskID, t.Priority, t.Status, or(t.DueDate, "-"), t.Title, updated(t.UpdatedAt))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Category, "category", "", "filter by category")
	cmd.Flags().StringVar(&f.Status, "status", "", "filter by status")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "filter by priority")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "search title, memo and tags")
	cmd.Flags().BoolVar(&f.DueToday, "today", false, "only open tasks due today or overdue")
	return cmd
}

func newTasksAddCommand(a *app) *cobra.Command {
	var in task.CreateInput
	cmd := &cobra.Command{
		Use:   "add TITLE",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Title = args[0]
			t, err := a.tasks.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Printf("✅ Created %s (%s, %s)\n", t.TaskID, t.Priority, t.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Category, "category", task.CategoryWork, "category")
	cmd.Flags().StringVar(&in.Priority, "priority", "", "P0, P1 or P2")
	cmd.Flags().StringVar(&in.DueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.ChannelScope, "scope", "", "ALL, PERSONAL or CHANNEL")
	cmd.Flags().StringVar(&in.ChannelID, "channel", "", "channel id")
	cmd.Flags().StringVar(&in.Assignee, "assignee", "", "assignee")
	cmd.Flags().StringVar(&in.Tags, "tags", "", "comma separated tags")
	cmd.Flags().StringVar(&in.Memo, "memo", "", "memo")
	return cmd
}

func newTasksPatchCommand(a *app) *cobra.Command {
	var (
		title, status, priority, due, memo, assignee, tags string
	)
	cmd := &cobra.Command{
		Use:   "patch ID",
		Short: "Update the given fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := task.PatchInput{TaskID: args[0]}
			flags := cmd.Flags()
			set := func(name string, v string) *string {
				if !flags.Changed(name) {
					return nil
				}
				return &v
			}
			in.Title = set("title", title)
			in.Status = set("status", status)
			in.Priority = set("priority", priority)
			in.DueDate = set("due", due)
			in.Memo = set("memo", memo)
			in.Assignee = set("assignee", assignee)
			in.Tags = set("tags", tags)

			t, err := a.tasks.Patch(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Printf("✅ Updated %s (%s, %s)\n", t.TaskID, t.Priority, t.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&status, "status", "", "TODO, DOING, DONE, HOLD or DELETED")
	cmd.Flags().StringVar(&priority, "priority", "", "P0, P1 or P2")
	cmd.Flags().StringVar(&due, "due", "", `due date (YYYY-MM-DD, "" clears)`)
	cmd.Flags().StringVar(&memo, "memo", "", "memo")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee")
	cmd.Flags().StringVar(&tags, "tags", "", "comma separated tags")
	return cmd
}

func updated(stamp string) string {
	t, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return ""
	}
	return "  (updated " + humanize.Time(t) + ")"
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
