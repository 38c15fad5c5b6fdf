package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	if rootCmd == nil {
		t.Fatal("rootCmd is nil")
	}

	if rootCmd.Use != "taskloom" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "taskloom")
	}

	// Check for expected subcommands (compare by Name(), not Use which includes args)
	expectedCmds := []string{"run", "resume", "tasks", "config"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, name := range expectedCmds {
		if !cmdMap[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestTasksSubcommands(t *testing.T) {
	expected := []string{"list", "show", "pause", "delete", "cleanup"}
	cmdMap := make(map[string]bool)
	for _, cmd := range tasksCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, name := range expected {
		if !cmdMap[name] {
			t.Errorf("missing tasks subcommand %q", name)
		}
	}
}

func TestRunRequiresTask(t *testing.T) {
	if _, err := executeCommand(rootCmd, "run"); err == nil {
		t.Error("run with no arguments should fail")
	}
}
