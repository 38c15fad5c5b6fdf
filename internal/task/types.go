// Package task defines the shared data model for taskloom orchestration:
// workers, subtasks, plans, execution policies, and worker outputs.
//
// These are pure data types with no behavior beyond basic accessors,
// designed to be shared by the orchestrator, ledger, and planner without
// creating import cycles between them.
package task

import "strings"

// -----------------------------------------------------------------------------
// Capability Tiers
// -----------------------------------------------------------------------------

// Tier is the ordinal capability class that selects which remote endpoint
// chain services a worker.
type Tier string

const (
	// TierLow selects the cheapest, fastest endpoint chain.
	// Suited to mechanical subtasks: extraction, reformatting, short summaries.
	TierLow Tier = "low"

	// TierMedium selects the general-purpose endpoint chain.
	// The default for subtasks with no declared tier.
	TierMedium Tier = "medium"

	// TierHigh selects the most capable endpoint chain.
	// Used for design work, review passes, and anything requiring judgment.
	TierHigh Tier = "high"
)

// String returns the string representation of the tier.
func (t Tier) String() string { return string(t) }

// IsValid returns true if this is a recognized tier value.
func (t Tier) IsValid() bool {
	switch t {
	case TierLow, TierMedium, TierHigh:
		return true
	default:
		return false
	}
}

// Ordinal returns the tier's position in the low < medium < high ordering.
// Unrecognized tiers sort with medium.
func (t Tier) Ordinal() int {
	switch t {
	case TierLow:
		return 0
	case TierHigh:
		return 2
	default:
		return 1
	}
}

// NormalizeTier maps free-form tier text to a valid Tier, defaulting to
// TierMedium. Planner output is model-generated, so spellings drift.
func NormalizeTier(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "cheap", "fast", "small":
		return TierLow
	case "high", "max", "large", "best":
		return TierHigh
	default:
		return TierMedium
	}
}

// -----------------------------------------------------------------------------
// Execution Policies
// -----------------------------------------------------------------------------

// Policy determines how a plan's subtask graph is scheduled.
type Policy string

const (
	// PolicyParallel launches all subtasks concurrently, ignoring declared
	// edges. Only meaningful for dependency-free graphs.
	PolicyParallel Policy = "parallel"

	// PolicySequential runs subtasks one at a time in depth-first
	// topological order, dependencies before dependents.
	PolicySequential Policy = "sequential"

	// PolicyMixed runs the graph wavefront by wavefront: every subtask
	// whose dependencies are all complete runs in the next parallel batch.
	PolicyMixed Policy = "mixed"
)

// String returns the string representation of the policy.
func (p Policy) String() string { return string(p) }

// IsValid returns true if this is a recognized policy value.
func (p Policy) IsValid() bool {
	switch p {
	case PolicyParallel, PolicySequential, PolicyMixed:
		return true
	default:
		return false
	}
}

// NormalizePolicy maps free-form policy text to a valid Policy, defaulting
// to PolicyMixed.
func NormalizePolicy(s string) Policy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "parallel":
		return PolicyParallel
	case "sequential", "serial":
		return PolicySequential
	default:
		return PolicyMixed
	}
}

// -----------------------------------------------------------------------------
// Workers and Subtasks
// -----------------------------------------------------------------------------

// Worker is a short-lived, data-described delegate bound to one capability
// tier for a single task graph's lifetime. Workers are created fresh per
// graph and never reused.
type Worker struct {
	// ID uniquely identifies this worker within the plan.
	ID string `json:"id"`

	// Name is a short, human-readable display name.
	Name string `json:"name"`

	// Role is the instruction text injected as the worker's system prompt.
	Role string `json:"role"`

	// Tier selects the endpoint chain that services this worker.
	Tier Tier `json:"tier"`

	// Skills lists free-form capability tags from the planner.
	Skills []string `json:"skills,omitempty"`
}

// Subtask is a single delegated unit of work. Subtasks are immutable once
// the graph is built and single-use.
type Subtask struct {
	// ID uniquely identifies this subtask within the plan.
	ID string `json:"id"`

	// Description contains the instructions given to the assigned worker.
	Description string `json:"description"`

	// WorkerID names the worker that executes this subtask.
	WorkerID string `json:"worker_id"`

	// DependsOn lists subtask IDs that must complete before this one starts.
	DependsOn []string `json:"depends_on,omitempty"`

	// Priority orders subtasks within the same ready frontier.
	// Lower values run earlier.
	Priority int `json:"priority"`
}

// HasDependencies returns true if this subtask depends on other subtasks.
func (s *Subtask) HasDependencies() bool {
	return len(s.DependsOn) > 0
}

// -----------------------------------------------------------------------------
// Worker Outputs
// -----------------------------------------------------------------------------

// Artifact is a named sub-artifact extracted from a worker's output,
// parsed from fenced code blocks tagged with file-like names.
type Artifact struct {
	// Name is the file-like tag on the fenced block, e.g. "cache.go".
	Name string `json:"name"`

	// Content is the body of the fenced block.
	Content string `json:"content"`
}

// WorkerOutput is the result of one completed subtask.
type WorkerOutput struct {
	// SubtaskID is the subtask that produced this output.
	SubtaskID string `json:"subtask_id"`

	// WorkerID identifies the worker that produced the content.
	WorkerID string `json:"worker_id"`

	// WorkerName is the worker's display name, preserved for reporting.
	WorkerName string `json:"worker_name"`

	// Content is the worker's full textual answer.
	Content string `json:"content"`

	// Artifacts holds any file-like fenced blocks extracted from Content.
	Artifacts []Artifact `json:"artifacts,omitempty"`
}
