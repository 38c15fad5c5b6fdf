package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskloom/taskloom/internal/provider"
	"github.com/taskloom/taskloom/internal/task"
)

// Planner decomposes a free-text task into a worker and subtask graph.
type Planner interface {
	Plan(ctx context.Context, taskText, contextText string) (*task.Plan, error)
}

// PlannerFunc adapts a function to the Planner interface.
type PlannerFunc func(ctx context.Context, taskText, contextText string) (*task.Plan, error)

func (f PlannerFunc) Plan(ctx context.Context, taskText, contextText string) (*task.Plan, error) {
	return f(ctx, taskText, contextText)
}

// LLMPlanner asks a model endpoint to decompose the task and parses the
// structured plan out of its reply.
type LLMPlanner struct {
	endpoint provider.Endpoint
}

// NewLLMPlanner builds a planner over the given endpoint, normally the
// high-tier chain.
func NewLLMPlanner(endpoint provider.Endpoint) *LLMPlanner {
	return &LLMPlanner{endpoint: endpoint}
}

const plannerSystemPrompt = `You are a task decomposition planner. Break the user's task into a set of
specialized workers and the subtasks they execute, expressed as JSON inside
a <plan> tag:

<plan>
{
  "summary": "one-paragraph executive summary of the approach",
  "workers": [
    {"id": "researcher", "name": "Researcher", "role": "system prompt for this worker", "tier": "low|medium|high", "skills": ["tag"]}
  ],
  "subtasks": [
    {"id": "s1", "description": "what to do", "worker_id": "researcher", "depends_on": [], "priority": 1}
  ],
  "execution_policy": "parallel|sequential|mixed",
  "needs_review": false
}
</plan>

Rules:
- Every subtask's worker_id must name a declared worker.
- depends_on may only reference declared subtask ids; no cycles.
- Use "parallel" only when no subtask depends on another.
- Use "mixed" when independent subtasks can overlap between dependency levels.
- Reserve "high" tier workers for work that genuinely needs deep reasoning.
- Set needs_review when outputs should be cross-checked before delivery.`

// Plan implements Planner.
func (p *LLMPlanner) Plan(ctx context.Context, taskText, contextText string) (*task.Plan, error) {
	var user strings.Builder
	user.WriteString("Task:\n")
	user.WriteString(taskText)
	if strings.TrimSpace(contextText) != "" {
		user.WriteString("\n\nAdditional context:\n")
		user.WriteString(contextText)
	}

	reply, err := p.endpoint.Invoke(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: plannerSystemPrompt},
		{Role: provider.RoleUser, Content: user.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("planner invocation: %w", err)
	}

	plan, err := task.ParsePlanFromOutput(reply)
	if err != nil {
		return nil, fmt.Errorf("parse planner output: %w", err)
	}
	return plan, nil
}
