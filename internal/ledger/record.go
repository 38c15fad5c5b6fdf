// Package ledger persists run records as JSON files so interrupted runs
// can be inspected and resumed. Every mutation rewrites the full record
// atomically; a crash leaves either the old record or the new one, never
// a torn file.
package ledger

import (
	"time"

	"github.com/taskloom/taskloom/internal/task"
)

// Status is the lifecycle state of a run or one of its subtasks.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SubtaskState tracks one subtask's progress within a run.
type SubtaskState struct {
	Status     Status     `json:"status"`
	Output     string     `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// CompletedOutput is one accumulated output entry: the subtask that
// produced it and its text, appended in completion order.
type CompletedOutput struct {
	SubtaskID string `json:"subtask_id"`
	Output    string `json:"output"`
}

// Record is the persisted state of one orchestration run. It carries the
// full plan so a resumed run can rebuild its workers without replanning.
type Record struct {
	ID          string `json:"id"`
	TaskText    string `json:"task_text"`
	ContextText string `json:"context_text,omitempty"`

	Status      Status `json:"status"`
	PauseReason string `json:"pause_reason,omitempty"`
	Error       string `json:"error,omitempty"`
	Summary     string `json:"summary,omitempty"`

	Policy      task.Policy    `json:"execution_policy"`
	NeedsReview bool           `json:"needs_review"`
	Workers     []task.Worker  `json:"workers"`
	Subtasks    []task.Subtask `json:"subtasks"`

	SubtaskStates map[string]*SubtaskState `json:"subtask_states"`

	// CompletedOutputs accumulates successful subtask outputs as they
	// finish, so external readers of the record file see them without
	// walking subtask_states.
	CompletedOutputs []CompletedOutput `json:"completed_outputs"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State returns the tracked state for a subtask, or nil if unknown.
func (r *Record) State(subtaskID string) *SubtaskState {
	if r.SubtaskStates == nil {
		return nil
	}
	return r.SubtaskStates[subtaskID]
}

// PendingSubtasks returns the subtasks that have not started, in
// declaration order. Resumption uses this to pick up where a crashed or
// paused run left off.
func (r *Record) PendingSubtasks() []task.Subtask {
	var pending []task.Subtask
	for _, st := range r.Subtasks {
		state := r.State(st.ID)
		if state == nil || state.Status == StatusPending {
			pending = append(pending, st)
		}
	}
	return pending
}

// CanExecuteSubtask reports whether every dependency of the given subtask
// has completed.
func (r *Record) CanExecuteSubtask(subtaskID string) bool {
	st := findSubtask(r.Subtasks, subtaskID)
	if st == nil {
		return false
	}
	for _, dep := range st.DependsOn {
		state := r.State(dep)
		if state == nil || state.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// OrderedOutputs returns the outputs of completed subtasks in
// declaration order, regardless of the order they finished in.
func (r *Record) OrderedOutputs() []task.WorkerOutput {
	var outputs []task.WorkerOutput
	for _, st := range r.Subtasks {
		state := r.State(st.ID)
		if state == nil || state.Status != StatusCompleted {
			continue
		}
		outputs = append(outputs, task.WorkerOutput{
			SubtaskID: st.ID,
			WorkerID:  st.WorkerID,
			Content:   state.Output,
		})
	}
	return outputs
}

func findSubtask(subtasks []task.Subtask, id string) *task.Subtask {
	for i := range subtasks {
		if subtasks[i].ID == id {
			return &subtasks[i]
		}
	}
	return nil
}
