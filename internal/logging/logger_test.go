package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLoggerWritesJSON(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.WithRun("run-1").Info("subtask finished", "subtask_id", "a")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "taskloom.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("log entry is not valid JSON: %v", err)
	}
	if entry["msg"] != "subtask finished" {
		t.Errorf("msg = %v, want 'subtask finished'", entry["msg"])
	}
	if entry["run_id"] != "run-1" {
		t.Errorf("run_id = %v, want 'run-1'", entry["run_id"])
	}
	if entry["subtask_id"] != "a" {
		t.Errorf("subtask_id = %v, want 'a'", entry["subtask_id"])
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelWarn)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Info("should be filtered")
	logger.Warn("should appear")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "taskloom.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	content := string(data)
	if len(content) == 0 {
		t.Fatal("expected at least one log entry")
	}
	if containsLine(content, "should be filtered") {
		t.Error("INFO entry should have been filtered at WARN level")
	}
	if !containsLine(content, "should appear") {
		t.Error("WARN entry missing from log")
	}
}

func containsLine(content, substr string) bool {
	for i := 0; i+len(substr) <= len(content); i++ {
		if content[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestChildLoggersDoNotMutateParent(t *testing.T) {
	parent := NopLogger()
	child := parent.WithWorker("w-1").With("tier", "high")

	if len(parent.attrs) != 0 {
		t.Errorf("parent attrs grew to %d, want 0", len(parent.attrs))
	}
	if len(child.attrs) != 2 {
		t.Errorf("child attrs = %d, want 2", len(child.attrs))
	}
}

func TestNopLoggerClose(t *testing.T) {
	if err := NopLogger().Close(); err != nil {
		t.Errorf("NopLogger Close returned error: %v", err)
	}
}
