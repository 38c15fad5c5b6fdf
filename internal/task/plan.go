package task

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Plan is the complete output of the decomposition phase: the workers to
// create, the subtask graph they execute, and how to schedule it.
type Plan struct {
	// Summary is an executive summary of the decomposition.
	Summary string `json:"summary"`

	// Workers lists the delegates to create for this graph.
	Workers []Worker `json:"workers"`

	// Subtasks contains the full subtask graph. Slice order is declaration
	// order and breaks scheduling ties.
	Subtasks []Subtask `json:"subtasks"`

	// Policy selects the execution policy for the graph.
	Policy Policy `json:"execution_policy"`

	// NeedsReview requests a final review pass over all outputs.
	NeedsReview bool `json:"needs_review"`

	// Groups batches subtask IDs into parallelizable waves, computed via
	// topological sort. Group 0 runs first. Subtasks trapped in a
	// dependency cycle appear in no group.
	Groups [][]string `json:"-"`
}

// GetWorker returns the worker with the given ID, or nil if not found.
func (p *Plan) GetWorker(id string) *Worker {
	for i := range p.Workers {
		if p.Workers[i].ID == id {
			return &p.Workers[i]
		}
	}
	return nil
}

// GetSubtask returns the subtask with the given ID, or nil if not found.
func (p *Plan) GetSubtask(id string) *Subtask {
	for i := range p.Subtasks {
		if p.Subtasks[i].ID == id {
			return &p.Subtasks[i]
		}
	}
	return nil
}

// planBlockRe matches the <plan>...</plan> envelope in planner output.
var planBlockRe = regexp.MustCompile(`(?s)<plan>\s*(.*?)\s*</plan>`)

// ParsePlanFromOutput parses a plan from planner model output. It looks
// for JSON wrapped in <plan></plan> tags, falling back to treating the
// whole output as JSON when no tags are present.
//
// Field names the model commonly improvises are accepted as aliases:
// "depends" for "depends_on", "agent_id"/"worker" for "worker_id",
// "instructions" for "role".
func ParsePlanFromOutput(output string) (*Plan, error) {
	jsonStr := strings.TrimSpace(output)
	if matches := planBlockRe.FindStringSubmatch(output); len(matches) >= 2 {
		jsonStr = strings.TrimSpace(matches[1])
	}

	// flexibleWorker and flexibleSubtask tolerate the alias field names
	// planner models generate.
	type flexibleWorker struct {
		ID           string   `json:"id"`
		Name         string   `json:"name"`
		Role         string   `json:"role"`
		Instructions string   `json:"instructions"`
		Tier         string   `json:"tier"`
		Capability   string   `json:"capability_tier"`
		Skills       []string `json:"skills"`
	}
	type flexibleSubtask struct {
		ID          string   `json:"id"`
		Description string   `json:"description"`
		WorkerID    string   `json:"worker_id"`
		Worker      string   `json:"worker"`
		AgentID     string   `json:"agent_id"`
		DependsOn   []string `json:"depends_on"`
		Depends     []string `json:"depends"`
		Priority    int      `json:"priority"`
	}
	var raw struct {
		Summary     string            `json:"summary"`
		Workers     []flexibleWorker  `json:"workers"`
		Subtasks    []flexibleSubtask `json:"subtasks"`
		Policy      string            `json:"execution_policy"`
		Strategy    string            `json:"strategy"`
		NeedsReview bool              `json:"needs_review"`
	}

	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse plan JSON: %w", err)
	}
	if len(raw.Subtasks) == 0 {
		return nil, fmt.Errorf("plan contains no subtasks")
	}
	if len(raw.Workers) == 0 {
		return nil, fmt.Errorf("plan contains no workers")
	}

	workers := make([]Worker, len(raw.Workers))
	for i, fw := range raw.Workers {
		role := fw.Role
		if role == "" {
			role = fw.Instructions
		}
		tier := fw.Tier
		if tier == "" {
			tier = fw.Capability
		}
		workers[i] = Worker{
			ID:     fw.ID,
			Name:   fw.Name,
			Role:   role,
			Tier:   NormalizeTier(tier),
			Skills: fw.Skills,
		}
	}

	subtasks := make([]Subtask, len(raw.Subtasks))
	for i, fs := range raw.Subtasks {
		workerID := fs.WorkerID
		if workerID == "" {
			workerID = fs.Worker
		}
		if workerID == "" {
			workerID = fs.AgentID
		}
		dependsOn := fs.DependsOn
		if len(dependsOn) == 0 && len(fs.Depends) > 0 {
			dependsOn = fs.Depends
		}
		subtasks[i] = Subtask{
			ID:          fs.ID,
			Description: fs.Description,
			WorkerID:    workerID,
			DependsOn:   dependsOn,
			Priority:    fs.Priority,
		}
	}

	policy := raw.Policy
	if policy == "" {
		policy = raw.Strategy
	}

	plan := &Plan{
		Summary:     raw.Summary,
		Workers:     workers,
		Subtasks:    subtasks,
		Policy:      NormalizePolicy(policy),
		NeedsReview: raw.NeedsReview,
	}
	plan.Groups = ExecutionGroups(plan.Subtasks)

	return plan, nil
}

// FallbackPlan builds the degraded single-worker plan used when planner
// output cannot be parsed: one generic medium-tier worker assigned the
// entire task verbatim. This path is always available.
func FallbackPlan(taskText string) *Plan {
	workerID := "generalist-" + shortID()
	plan := &Plan{
		Summary: "Single-worker fallback: the task could not be decomposed.",
		Workers: []Worker{{
			ID:   workerID,
			Name: "Generalist",
			Role: "You are a capable generalist. Complete the task you are given thoroughly and directly.",
			Tier: TierMedium,
		}},
		Subtasks: []Subtask{{
			ID:          "subtask-1",
			Description: taskText,
			WorkerID:    workerID,
		}},
		Policy: PolicySequential,
	}
	plan.Groups = ExecutionGroups(plan.Subtasks)
	return plan
}

// ExecutionGroups performs a topological sort and batches subtasks that can
// run in parallel. Each returned group contains IDs whose dependencies all
// appear in earlier groups; within a group, IDs are ordered by priority,
// ties by declaration order. Subtasks involved in a cycle are omitted.
func ExecutionGroups(subtasks []Subtask) [][]string {
	inDegree := make(map[string]int, len(subtasks))
	priority := make(map[string]int, len(subtasks))
	declared := make(map[string]int, len(subtasks))
	for i, st := range subtasks {
		inDegree[st.ID] = len(st.DependsOn)
		priority[st.ID] = st.Priority
		declared[st.ID] = i
	}

	var groups [][]string
	done := make(map[string]bool, len(subtasks))

	for len(done) < len(subtasks) {
		var current []string
		for _, st := range subtasks {
			if done[st.ID] {
				continue
			}
			if inDegree[st.ID] == 0 {
				current = append(current, st.ID)
			}
		}

		if len(current) == 0 {
			// Remaining subtasks form a cycle or reference missing IDs.
			break
		}

		sort.SliceStable(current, func(i, j int) bool {
			if priority[current[i]] != priority[current[j]] {
				return priority[current[i]] < priority[current[j]]
			}
			return declared[current[i]] < declared[current[j]]
		})

		groups = append(groups, current)

		for _, id := range current {
			done[id] = true
			for _, st := range subtasks {
				for _, dep := range st.DependsOn {
					if dep == id {
						inDegree[st.ID]--
					}
				}
			}
		}
	}

	return groups
}

// SequentialOrder returns a deterministic depth-first topological order:
// dependencies before dependents, ties broken by declaration order. IDs
// referenced but not declared are skipped. On cyclic graphs the order is
// still total; the executor's dependency check handles the fallout.
func SequentialOrder(subtasks []Subtask) []string {
	index := make(map[string]*Subtask, len(subtasks))
	for i := range subtasks {
		index[subtasks[i].ID] = &subtasks[i]
	}

	visited := make(map[string]bool, len(subtasks))
	order := make([]string, 0, len(subtasks))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		st, ok := index[id]
		if !ok {
			return
		}
		visited[id] = true
		for _, dep := range st.DependsOn {
			visit(dep)
		}
		order = append(order, id)
	}

	for i := range subtasks {
		visit(subtasks[i].ID)
	}
	return order
}

// shortID returns an 8-character random identifier suffix.
func shortID() string {
	return uuid.NewString()[:8]
}

// NewWorkerID builds a fresh worker id from a display name.
func NewWorkerID(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	if slug == "" {
		slug = "worker"
	}
	return slug + "-" + shortID()
}
