package task

import (
	"fmt"

	"github.com/taskloom/taskloom/internal/errors"
)

// Severity classifies a validation message. Errors block execution;
// warnings are advisory and handled at runtime by skipping the affected
// subtask.
type Severity string

const (
	// SeverityError is a blocking structural problem.
	SeverityError Severity = "error"
	// SeverityWarning is a problem the executor recovers from.
	SeverityWarning Severity = "warning"
)

// ValidationMessage is a single issue found while validating a plan.
type ValidationMessage struct {
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
	SubtaskID string   `json:"subtask_id,omitempty"`
}

// ValidationResult holds all issues found in one plan.
type ValidationResult struct {
	Messages []ValidationMessage `json:"messages"`
}

// HasErrors returns true if any error-level message was found.
func (r *ValidationResult) HasErrors() bool {
	for _, m := range r.Messages {
		if m.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the error-level messages.
func (r *ValidationResult) Errors() []ValidationMessage {
	var out []ValidationMessage
	for _, m := range r.Messages {
		if m.Severity == SeverityError {
			out = append(out, m)
		}
	}
	return out
}

func (r *ValidationResult) add(sev Severity, subtaskID, format string, args ...any) {
	r.Messages = append(r.Messages, ValidationMessage{
		Severity:  sev,
		Message:   fmt.Sprintf(format, args...),
		SubtaskID: subtaskID,
	})
}

// ValidatePlan checks a plan's structure.
//
// Errors: no subtasks, duplicate subtask ids, dependency edges that
// reference ids outside the graph. Warnings: subtasks assigned to unknown
// workers (skipped at runtime), empty descriptions, and dependency cycles
// (the wavefront scheduler detects these at runtime and returns partial
// outputs rather than failing).
func ValidatePlan(plan *Plan) *ValidationResult {
	result := &ValidationResult{}

	if plan == nil {
		result.add(SeverityError, "", "plan is nil")
		return result
	}
	if len(plan.Subtasks) == 0 {
		result.add(SeverityError, "", "plan contains no subtasks")
		return result
	}

	subtaskIDs := make(map[string]bool, len(plan.Subtasks))
	for _, st := range plan.Subtasks {
		if st.ID == "" {
			result.add(SeverityError, "", "subtask has empty id")
			continue
		}
		if subtaskIDs[st.ID] {
			result.add(SeverityError, st.ID, "duplicate subtask id %q", st.ID)
		}
		subtaskIDs[st.ID] = true
	}

	workerIDs := make(map[string]bool, len(plan.Workers))
	for _, w := range plan.Workers {
		workerIDs[w.ID] = true
	}

	for _, st := range plan.Subtasks {
		for _, dep := range st.DependsOn {
			if !subtaskIDs[dep] {
				result.add(SeverityError, st.ID, "subtask %q depends on unknown subtask %q", st.ID, dep)
			}
		}
		if !workerIDs[st.WorkerID] {
			result.add(SeverityWarning, st.ID, "subtask %q is assigned to unknown worker %q", st.ID, st.WorkerID)
		}
		if st.Description == "" {
			result.add(SeverityWarning, st.ID, "subtask %q has no description", st.ID)
		}
	}

	// A shortfall in the grouped schedule means some subtasks can never
	// become ready: a dependency cycle.
	scheduled := 0
	for _, group := range ExecutionGroups(plan.Subtasks) {
		scheduled += len(group)
	}
	if scheduled < len(plan.Subtasks) {
		result.add(SeverityWarning, "", "dependency cycle: only %d of %d subtasks can be scheduled", scheduled, len(plan.Subtasks))
	}

	return result
}

// ValidatePlanStrict returns ErrPlanInvalid wrapping the first error-level
// message, or nil when the plan has no blocking issues.
func ValidatePlanStrict(plan *Plan) error {
	result := ValidatePlan(plan)
	if errs := result.Errors(); len(errs) > 0 {
		return fmt.Errorf("%w: %s", errors.ErrPlanInvalid, errs[0].Message)
	}
	return nil
}
