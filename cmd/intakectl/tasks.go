package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/parcel-intake-backend/internal/propagation"
	"github.com/angelmondragon/parcel-intake-backend/pkg/enums"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and cancel deferred status propagation tasks",
	}

	tasksCmd.AddCommand(newTasksListCommand(ctx))
	tasksCmd.AddCommand(newTasksCancelCommand(ctx))

	return tasksCmd
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	var trackingNumber string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List propagation tasks, soonest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := propagation.TaskFilter{
				TrackingNumber: strings.TrimSpace(trackingNumber),
				Limit:          limit,
			}
			if strings.TrimSpace(status) != "" {
				parsed, err := enums.ParsePropagationTaskStatus(status)
				if err != nil {
					return err
				}
				filter.Status = parsed
			}
			return ctx.withServices(cmd.Context(), func(svc *services) error {
				tasks, err := svc.tasks.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, tasks)
				}
				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No propagation tasks")
					return nil
				}
				rows := make([][]string, 0, len(tasks))
				for _, t := range tasks {
					lastError := ""
					if t.LastError != nil {
						lastError = *t.LastError
					}
					rows = append(rows, []string{
						t.ID.String(),
						t.TrackingNumber,
						string(t.Stage),
						colorStatus(t.Status),
						formatTime(&t.RunAt),
						strconv.Itoa(t.Attempts),
						orDash(lastError),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Tracking", "Stage", "Status", "Run At", "Attempts", "Last Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&trackingNumber, "tracking", "", "Filter by tracking number")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, running, succeeded, failed, canceled)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to show")
	return cmd
}

func newTasksCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a pending propagation task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
			}
			return ctx.withServices(cmd.Context(), func(svc *services) error {
				task, err := svc.tasks.Cancel(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, task)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Canceled %s task for %s\n", task.Stage, task.TrackingNumber)
				return nil
			})
		},
	}
}

func colorStatus(status enums.PropagationTaskStatus) string {
	switch status {
	case enums.TaskStatusSucceeded:
		return text.FgGreen.Sprint(status)
	case enums.TaskStatusFailed:
		return text.FgRed.Sprint(status)
	case enums.TaskStatusRunning:
		return text.FgYellow.Sprint(status)
	default:
		return string(status)
	}
}
