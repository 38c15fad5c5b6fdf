package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskloom/taskloom/internal/config"
	"github.com/taskloom/taskloom/internal/ledger"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and manage journaled runs",
	Long: `Commands for working with the task ledger:
- List active or all runs
- Show a run's plan and per-subtask progress
- Pause a running task or delete a stored record
- Clean up old finished records`,
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journaled runs",
	RunE:  runTasksList,
}

var tasksShowCmd = &cobra.Command{
	Use:   "show <record-id>",
	Short: "Show one run's status and subtask progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksShow,
}

var tasksPauseCmd = &cobra.Command{
	Use:   "pause <record-id>",
	Short: "Request a pause for a running task",
	Long: `Pause marks a running record paused. The executor honors the request
at the next scheduling point: subtasks already dispatched finish, no
new subtask starts. Resume the run with 'taskloom resume <record-id>'.`,
	Args: cobra.ExactArgs(1),
	RunE: runTasksPause,
}

var tasksDeleteCmd = &cobra.Command{
	Use:   "delete <record-id>",
	Short: "Delete a stored record",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksDelete,
}

var tasksCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove finished records older than the retention age",
	Long: `Cleanup deletes completed and failed records whose last update is
older than the retention age. Pending, running, and paused records are
never removed, regardless of age.`,
	RunE: runTasksCleanup,
}

var (
	tasksListAll    bool
	tasksPauseNote  string
	tasksCleanupAge int
)

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksShowCmd)
	tasksCmd.AddCommand(tasksPauseCmd)
	tasksCmd.AddCommand(tasksDeleteCmd)
	tasksCmd.AddCommand(tasksCleanupCmd)

	tasksListCmd.Flags().BoolVarP(&tasksListAll, "all", "a", false, "Include completed and failed runs")
	tasksPauseCmd.Flags().StringVar(&tasksPauseNote, "reason", "", "Why the task is being paused")
	tasksCleanupCmd.Flags().IntVar(&tasksCleanupAge, "older-than", 0, "Retention age in hours (default from config)")
}

func openStore() (*ledger.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	store, err := ledger.NewStore(cfg.Ledger.ResolveDir())
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}
	return store, cfg, nil
}

func runTasksList(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}

	var records []*ledger.Record
	if tasksListAll {
		records, err = store.List()
	} else {
		records, err = store.ListActive()
	}
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	fmt.Printf("%-45s %-10s %-8s %s\n", "RECORD", "STATUS", "DONE", "TASK")
	for _, rec := range records {
		done := 0
		for _, st := range rec.Subtasks {
			if state := rec.State(st.ID); state != nil && state.Status == ledger.StatusCompleted {
				done++
			}
		}
		fmt.Printf("%-45s %-10s %d/%-6d %s\n", rec.ID, rec.Status, done, len(rec.Subtasks), truncateTask(rec.TaskText, 50))
	}
	return nil
}

func runTasksShow(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	rec, err := store.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Record:   %s\n", rec.ID)
	fmt.Printf("Status:   %s\n", rec.Status)
	if rec.PauseReason != "" {
		fmt.Printf("Paused:   %s\n", rec.PauseReason)
	}
	if rec.Error != "" {
		fmt.Printf("Error:    %s\n", rec.Error)
	}
	fmt.Printf("Policy:   %s\n", rec.Policy)
	fmt.Printf("Created:  %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:  %s\n", rec.UpdatedAt.Format(time.RFC3339))
	fmt.Printf("Task:     %s\n", truncateTask(rec.TaskText, 100))

	fmt.Printf("\nWorkers (%d):\n", len(rec.Workers))
	for _, w := range rec.Workers {
		fmt.Printf("  %-20s %-10s %s\n", w.ID, w.Tier, w.Name)
	}

	fmt.Printf("\nSubtasks (%d):\n", len(rec.Subtasks))
	for _, st := range rec.Subtasks {
		status := ledger.StatusPending
		if state := rec.State(st.ID); state != nil {
			status = state.Status
		}
		deps := ""
		if len(st.DependsOn) > 0 {
			deps = fmt.Sprintf(" (after %v)", st.DependsOn)
		}
		fmt.Printf("  %-10s %-12s %s%s\n", st.ID, status, truncateTask(st.Description, 60), deps)
	}

	if rec.Status == ledger.StatusCompleted && rec.Summary != "" {
		fmt.Printf("\nSummary:\n%s\n", rec.Summary)
	}
	return nil
}

func runTasksPause(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	rec, err := store.Pause(args[0], tasksPauseNote)
	if err != nil {
		return err
	}
	fmt.Printf("Paused %s. Resume with: taskloom resume %s\n", rec.ID, rec.ID)
	return nil
}

func runTasksDelete(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	if err := store.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

func runTasksCleanup(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}

	maxAge := cfg.Ledger.CleanupAge()
	if tasksCleanupAge > 0 {
		maxAge = time.Duration(tasksCleanupAge) * time.Hour
	}

	removed, err := store.Cleanup(maxAge)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d record(s) older than %s\n", removed, maxAge)
	return nil
}

func truncateTask(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
