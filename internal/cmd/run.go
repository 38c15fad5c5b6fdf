package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taskloom/taskloom/internal/config"
	"github.com/taskloom/taskloom/internal/task"
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Decompose a task and execute it with a team of workers",
	Long: `Run plans the task as a dependency graph of subtasks, creates one
worker per planned role, executes the graph under the plan's policy
(parallel, sequential, or mixed), and prints the aggregated answer.

Results are cached: running the same task with the same context again
within the cache TTL returns the stored answer without re-executing.

Artifacts (fenced code blocks named like files in worker output) can be
written to disk with --output-dir.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runContext     string
	runContextFile string
	runNoCache     bool
	runQuiet       bool
	runOutputDir   string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runContext, "context", "", "Additional context handed to the planner and workers")
	runCmd.Flags().StringVar(&runContextFile, "context-file", "", "Read additional context from a file")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "Skip the result cache for this run")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Suppress progress output, print only the answer")
	runCmd.Flags().StringVarP(&runOutputDir, "output-dir", "o", "", "Write extracted artifacts into this directory")
}

func runRun(cmd *cobra.Command, args []string) error {
	taskText := strings.TrimSpace(strings.Join(args, " "))
	if taskText == "" {
		return fmt.Errorf("task text is empty")
	}

	contextText := runContext
	if runContextFile != "" {
		data, err := os.ReadFile(runContextFile)
		if err != nil {
			return fmt.Errorf("read context file: %w", err)
		}
		if contextText != "" {
			contextText += "\n\n"
		}
		contextText += string(data)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if runNoCache {
		cfg.Cache.Enabled = false
	}
	rt, err := buildRuntimeFromConfig(cfg, runQuiet)
	if err != nil {
		return err
	}
	defer rt.close()

	res, err := rt.engine.Execute(cmd.Context(), taskText, contextText)
	if err != nil {
		return err
	}

	if res.Paused {
		fmt.Fprintf(os.Stderr, "Run paused. Resume with: taskloom resume %s\n", res.RecordID)
		return nil
	}

	fmt.Println(res.Summary)

	if runOutputDir != "" {
		if err := writeArtifacts(runOutputDir, res.Outputs); err != nil {
			return err
		}
	}
	return nil
}

// writeArtifacts materializes every named artifact under dir, preserving
// relative paths from the artifact names.
func writeArtifacts(dir string, outputs []task.WorkerOutput) error {
	written := 0
	for _, out := range outputs {
		for _, art := range out.Artifacts {
			rel := filepath.Clean(art.Name)
			if filepath.IsAbs(rel) || strings.HasPrefix(rel, "..") {
				fmt.Fprintf(os.Stderr, "skipping artifact with unsafe path: %s\n", art.Name)
				continue
			}
			path := filepath.Join(dir, rel)
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return fmt.Errorf("create artifact directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(art.Content), 0644); err != nil {
				return fmt.Errorf("write artifact %s: %w", art.Name, err)
			}
			written++
		}
	}
	if written > 0 {
		fmt.Fprintf(os.Stderr, "wrote %d artifact(s) to %s\n", written, dir)
	}
	return nil
}

var resumeCmd = &cobra.Command{
	Use:   "resume <record-id>",
	Short: "Resume a paused or interrupted run",
	Long: `Resume picks up a run from its ledger record: completed subtasks keep
their outputs, and only the remaining subtasks execute. Paused records
move back to running; records left running by a crashed process are
recovered the same way.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	resumeCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Suppress progress output, print only the answer")
}

func runResume(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(runQuiet)
	if err != nil {
		return err
	}
	defer rt.close()

	res, err := rt.engine.Resume(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if res.Paused {
		fmt.Fprintf(os.Stderr, "Run paused again. Resume with: taskloom resume %s\n", res.RecordID)
		return nil
	}

	fmt.Println(res.Summary)
	return nil
}
