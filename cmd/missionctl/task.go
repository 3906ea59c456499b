package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/missionctl/internal/models"
	"github.com/fentz26/missionctl/internal/roles"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add [task-id]",
	Short: "Add a task to the database task source",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks merged from every source",
	RunE:  runTaskList,
}

var taskSetStatusCmd = &cobra.Command{
	Use:   "set-status [task-id] [status]",
	Short: "Rewrite a task's status in the source that owns it",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskSetStatus,
}

var taskHistoryCmd = &cobra.Command{
	Use:   "history [task-id]",
	Short: "Show decision records for a task",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTaskHistory,
}

var (
	taskTitle     string
	taskStatus    string
	taskAssignees []string
	listStatus    string
	historyLimit  int
)

func init() {
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskSetStatusCmd, taskHistoryCmd)

	taskAddCmd.Flags().StringVar(&taskTitle, "title", "", "Task title (required)")
	taskAddCmd.Flags().StringVar(&taskStatus, "status", "Planning", "Initial status")
	taskAddCmd.Flags().StringSliceVar(&taskAssignees, "assignee", nil, "Assigned role (planner, dev, pm, reviewer, uiux); repeatable")
	taskAddCmd.MarkFlagRequired("title")

	taskListCmd.Flags().StringVar(&listStatus, "status", "", "Only show tasks whose status contains this text")

	taskHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum records to show")
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	db, err := a.taskDB()
	if err != nil {
		return err
	}
	task, err := db.CreateTask(cmd.Context(), args[0], taskTitle, taskStatus, roles.Normalize(taskAssignees))
	if err != nil {
		return err
	}

	fmt.Printf("Created task: %s (%s)\n", task.TaskID, task.ID)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tasks, err := a.repo.List(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	filter := strings.ToLower(listStatus)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tASSIGNEES\tSOURCE\tTITLE")
	shown := 0
	for _, t := range tasks {
		if filter != "" && !strings.Contains(strings.ToLower(t.Status), filter) {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.TaskID, t.Status, joinAssignees(t.Assignees), t.Source, t.DisplayTitle())
		shown++
	}
	w.Flush()

	if shown == 0 {
		fmt.Println("No tasks found.")
	}
	return nil
}

func joinAssignees(rs []models.Role) string {
	if len(rs) == 0 {
		return "-"
	}
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

func runTaskSetStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id := strings.ToLower(strings.TrimSpace(args[0]))
	tasks, err := a.repo.List(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	for _, t := range tasks {
		if t.TaskID != id {
			continue
		}
		if err := a.repo.SetStatus(cmd.Context(), t.SourcePath, args[1]); err != nil {
			return err
		}
		fmt.Printf("Task %s: %q -> %q (%s)\n", id, t.Status, args[1], t.SourcePath)
		return nil
	}
	return fmt.Errorf("task %s not found", id)
}

func runTaskHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	taskID := ""
	if len(args) == 1 {
		taskID = strings.ToLower(args[0])
	}
	entries, err := a.db.ListPDRs(taskID, historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No decision records.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTASK\tACTION\tOUTCOME\tDETAILS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.TaskID, e.Action, e.Outcome, e.Details)
	}
	return w.Flush()
}
