package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/taskloom/taskloom/internal/cache"
	"github.com/taskloom/taskloom/internal/errors"
	"github.com/taskloom/taskloom/internal/ledger"
	"github.com/taskloom/taskloom/internal/provider"
	"github.com/taskloom/taskloom/internal/task"
)

// funcEndpoint adapts a function to provider.Endpoint for tests.
type funcEndpoint struct {
	name string
	fn   func(ctx context.Context, messages []provider.Message) (string, error)
}

func (f *funcEndpoint) Describe() string { return f.name }

func (f *funcEndpoint) Invoke(ctx context.Context, messages []provider.Message) (string, error) {
	return f.fn(ctx, messages)
}

// echoEndpoint answers every invocation with a canned reply and records
// the last user message per call, in order.
type echoEndpoint struct {
	mu    sync.Mutex
	calls []string
}

func (e *echoEndpoint) Describe() string { return "echo" }

func (e *echoEndpoint) Invoke(_ context.Context, messages []provider.Message) (string, error) {
	last := messages[len(messages)-1].Content
	e.mu.Lock()
	e.calls = append(e.calls, last)
	e.mu.Unlock()
	return "answer to: " + firstLine(last), nil
}

func (e *echoEndpoint) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func fixedPlanner(plan *task.Plan) Planner {
	return PlannerFunc(func(context.Context, string, string) (*task.Plan, error) {
		return plan, nil
	})
}

// diamondPlan returns a small fan-out graph: A with no deps, B and C both
// depending on A.
func diamondPlan(policy task.Policy) *task.Plan {
	return &task.Plan{
		Summary: "diamond",
		Policy:  policy,
		Workers: []task.Worker{
			{ID: "w1", Name: "Alpha", Role: "do work", Tier: task.TierMedium},
		},
		Subtasks: []task.Subtask{
			{ID: "A", Description: "step A", WorkerID: "w1"},
			{ID: "B", Description: "step B", WorkerID: "w1", DependsOn: []string{"A"}},
			{ID: "C", Description: "step C", WorkerID: "w1", DependsOn: []string{"A"}},
		},
	}
}

func newTestEngine(t *testing.T, planner Planner, ep provider.Endpoint, c *cache.Cache) (*Engine, *ledger.Store) {
	t.Helper()
	store, err := ledger.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	resolver := func(task.Tier) (provider.Endpoint, error) { return ep, nil }
	eng := NewEngine(planner, resolver, c, store, nil, nil, DefaultConfig())
	return eng, store
}

func TestExecuteMixedDiamond(t *testing.T) {
	ep := &echoEndpoint{}
	eng, store := newTestEngine(t, fixedPlanner(diamondPlan(task.PolicyMixed)), ep, nil)

	res, err := eng.Execute(context.Background(), "diamond task", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Outputs) != 3 {
		t.Fatalf("outputs = %d, want 3", len(res.Outputs))
	}

	// A must run strictly before B and C; B/C order is unconstrained.
	ep.mu.Lock()
	calls := append([]string(nil), ep.calls...)
	ep.mu.Unlock()
	if len(calls) != 3 {
		t.Fatalf("invocations = %d, want 3", len(calls))
	}
	if !strings.HasPrefix(calls[0], "step A") {
		t.Errorf("first invocation = %q, want step A", firstLine(calls[0]))
	}

	// Every subtask reaches a terminal state in the ledger.
	rec, err := store.Get(res.RecordID)
	if err != nil {
		t.Fatalf("Get record: %v", err)
	}
	if rec.Status != ledger.StatusCompleted {
		t.Errorf("record status = %q, want completed", rec.Status)
	}
	for _, id := range []string{"A", "B", "C"} {
		state := rec.State(id)
		if state.Status != ledger.StatusCompleted {
			t.Errorf("subtask %s status = %q, want completed", id, state.Status)
		}
		if state.StartedAt == nil || state.FinishedAt == nil {
			t.Errorf("subtask %s missing timestamps", id)
		}
	}
}

func TestExecuteSequentialOrder(t *testing.T) {
	ep := &echoEndpoint{}
	// Declare dependents before their prerequisite to prove ordering comes
	// from the graph, not declaration order.
	plan := &task.Plan{
		Summary: "chain",
		Policy:  task.PolicySequential,
		Workers: []task.Worker{{ID: "w1", Name: "Alpha", Role: "r", Tier: task.TierLow}},
		Subtasks: []task.Subtask{
			{ID: "last", Description: "step last", WorkerID: "w1", DependsOn: []string{"mid"}},
			{ID: "mid", Description: "step mid", WorkerID: "w1", DependsOn: []string{"first"}},
			{ID: "first", Description: "step first", WorkerID: "w1"},
		},
	}
	eng, _ := newTestEngine(t, fixedPlanner(plan), ep, nil)

	res, err := eng.Execute(context.Background(), "chain task", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Outputs) != 3 {
		t.Fatalf("outputs = %d, want 3", len(res.Outputs))
	}

	want := []string{"step first", "step mid", "step last"}
	for i, call := range ep.calls {
		if !strings.HasPrefix(call, want[i]) {
			t.Errorf("invocation %d = %q, want prefix %q", i, firstLine(call), want[i])
		}
	}
}

func TestParallelIgnoresDeclaredEdges(t *testing.T) {
	ep := &echoEndpoint{}
	// Declare the dependent first so it is dispatched while its edge is
	// still unmet.
	plan := &task.Plan{
		Summary: "eager",
		Policy:  task.PolicyParallel,
		Workers: []task.Worker{{ID: "w1", Name: "Alpha", Role: "r", Tier: task.TierMedium}},
		Subtasks: []task.Subtask{
			{ID: "dependent", Description: "step dependent", WorkerID: "w1", DependsOn: []string{"root"}},
			{ID: "root", Description: "step root", WorkerID: "w1"},
		},
	}
	store, err := ledger.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	resolver := func(task.Tier) (provider.Endpoint, error) { return ep, nil }
	// A single goroutine forces dispatch in declaration order.
	eng := NewEngine(fixedPlanner(plan), resolver, nil, store, nil, nil, Config{MaxParallel: 1, ReviewTier: task.TierHigh})

	res, err := eng.Execute(context.Background(), "eager task", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Outputs) != 2 {
		t.Fatalf("outputs = %d, want 2 (parallel runs every subtask)", len(res.Outputs))
	}
	if joined := strings.Join(res.Transcript, "\n"); strings.Contains(joined, "skipped") {
		t.Errorf("parallel policy skipped a subtask:\n%s", joined)
	}
}

func TestExecuteCycleReturnsPartialOutputs(t *testing.T) {
	ep := &echoEndpoint{}
	plan := &task.Plan{
		Summary: "cyclic",
		Policy:  task.PolicyMixed,
		Workers: []task.Worker{{ID: "w1", Name: "Alpha", Role: "r", Tier: task.TierMedium}},
		Subtasks: []task.Subtask{
			{ID: "free", Description: "step free", WorkerID: "w1"},
			{ID: "x", Description: "step x", WorkerID: "w1", DependsOn: []string{"y"}},
			{ID: "y", Description: "step y", WorkerID: "w1", DependsOn: []string{"x"}},
		},
	}
	eng, store := newTestEngine(t, fixedPlanner(plan), ep, nil)

	res, err := eng.Execute(context.Background(), "cyclic task", "")
	if err != nil {
		t.Fatalf("Execute should not fail on a cycle: %v", err)
	}
	if len(res.Outputs) != 1 || res.Outputs[0].SubtaskID != "free" {
		t.Errorf("outputs = %+v, want only the free subtask", res.Outputs)
	}
	if ep.callCount() != 1 {
		t.Errorf("invocations = %d, want 1 (cycle members never run)", ep.callCount())
	}

	rec, _ := store.Get(res.RecordID)
	if rec.Status != ledger.StatusCompleted {
		t.Errorf("record status = %q, want completed despite the cycle", rec.Status)
	}
}

func TestExecuteMissingWorkerSkips(t *testing.T) {
	ep := &echoEndpoint{}
	plan := &task.Plan{
		Summary: "partial staffing",
		Policy:  task.PolicyParallel,
		Workers: []task.Worker{{ID: "w1", Name: "Alpha", Role: "r", Tier: task.TierMedium}},
		Subtasks: []task.Subtask{
			{ID: "staffed", Description: "step staffed", WorkerID: "w1"},
			{ID: "orphan", Description: "step orphan", WorkerID: "ghost"},
		},
	}
	// Skip strict validation by wiring the planner to return the plan as-is:
	// the unknown worker is a warning, not an error, in ValidatePlan.
	eng, store := newTestEngine(t, fixedPlanner(plan), ep, nil)

	res, err := eng.Execute(context.Background(), "staffing task", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Outputs) != 1 || res.Outputs[0].SubtaskID != "staffed" {
		t.Errorf("outputs = %+v, want only the staffed subtask", res.Outputs)
	}

	rec, _ := store.Get(res.RecordID)
	if got := rec.State("orphan").Status; got != ledger.StatusPending {
		t.Errorf("orphan status = %q, want pending (skipped, never started)", got)
	}
}

func TestExecuteReviewAppendsOutput(t *testing.T) {
	ep := &echoEndpoint{}
	plan := diamondPlan(task.PolicyMixed)
	plan.NeedsReview = true
	eng, _ := newTestEngine(t, fixedPlanner(plan), ep, nil)

	res, err := eng.Execute(context.Background(), "reviewed task", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Outputs) != 4 {
		t.Fatalf("outputs = %d, want 3 subtasks + 1 review", len(res.Outputs))
	}
	review := res.Outputs[3]
	if review.WorkerID != "reviewer" {
		t.Errorf("last output worker = %q, want reviewer", review.WorkerID)
	}

	// The reviewer sees the concatenation of all prior outputs.
	last := ep.calls[len(ep.calls)-1]
	for _, id := range []string{"A", "B", "C"} {
		if !strings.Contains(last, "("+id+")") {
			t.Errorf("review prompt missing output for subtask %s", id)
		}
	}
}

func TestExecuteCacheSkipsPlanner(t *testing.T) {
	ep := &echoEndpoint{}
	plannerCalls := 0
	planner := PlannerFunc(func(context.Context, string, string) (*task.Plan, error) {
		plannerCalls++
		return diamondPlan(task.PolicyMixed), nil
	})
	eng, _ := newTestEngine(t, planner, ep, cache.New(cache.DefaultConfig()))

	first, err := eng.Execute(context.Background(), "design a cache", "")
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	second, err := eng.Execute(context.Background(), "design a cache", "")
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}

	if plannerCalls != 1 {
		t.Errorf("planner calls = %d, want 1 (second run served from cache)", plannerCalls)
	}
	if second.Summary != first.Summary {
		t.Errorf("cached summary differs from original")
	}
	if second.RecordID != "" {
		t.Errorf("cache hit created ledger record %s", second.RecordID)
	}
}

func TestExecutePlannerFailureFallsBack(t *testing.T) {
	ep := &echoEndpoint{}
	planner := PlannerFunc(func(context.Context, string, string) (*task.Plan, error) {
		return nil, fmt.Errorf("model produced prose instead of a plan")
	})
	eng, _ := newTestEngine(t, planner, ep, nil)

	res, err := eng.Execute(context.Background(), "just do the thing", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Outputs) != 1 {
		t.Fatalf("outputs = %d, want 1 from the fallback worker", len(res.Outputs))
	}
	// The fallback worker receives the task verbatim.
	if !strings.HasPrefix(ep.calls[0], "just do the thing") {
		t.Errorf("fallback prompt = %q, want the verbatim task", firstLine(ep.calls[0]))
	}
}

func TestExecuteInvalidPlanFallsBack(t *testing.T) {
	ep := &echoEndpoint{}
	broken := &task.Plan{
		Policy:  task.PolicyMixed,
		Workers: []task.Worker{{ID: "w1", Name: "Alpha", Role: "r", Tier: task.TierMedium}},
		Subtasks: []task.Subtask{
			{ID: "a", Description: "step a", WorkerID: "w1", DependsOn: []string{"no-such-id"}},
		},
	}
	eng, _ := newTestEngine(t, fixedPlanner(broken), ep, nil)

	res, err := eng.Execute(context.Background(), "task with a broken plan", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Outputs) != 1 {
		t.Fatalf("outputs = %d, want 1 from the fallback worker", len(res.Outputs))
	}
	if !strings.HasPrefix(ep.calls[0], "task with a broken plan") {
		t.Errorf("fallback prompt = %q, want the verbatim task", firstLine(ep.calls[0]))
	}
}

func TestExecuteTerminalErrorFailsRecord(t *testing.T) {
	terminal := &errors.TerminalError{Attempts: 4, Last: errors.NewProviderError("p", 503, "down")}
	ep := &funcEndpoint{name: "broken", fn: func(context.Context, []provider.Message) (string, error) {
		return "", terminal
	}}
	eng, store := newTestEngine(t, fixedPlanner(diamondPlan(task.PolicySequential)), ep, nil)

	_, err := eng.Execute(context.Background(), "doomed task", "")
	if err == nil {
		t.Fatal("expected terminal failure to propagate")
	}
	if !errors.IsTerminal(err) {
		t.Errorf("error %v should classify as terminal", err)
	}

	records, _ := store.List()
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].Status != ledger.StatusFailed {
		t.Errorf("record status = %q, want failed", records[0].Status)
	}
	if records[0].Error == "" {
		t.Error("failed record should retain the error for diagnosis")
	}
}

func TestExecutePauseStopsBetweenSubtasks(t *testing.T) {
	var eng *Engine
	var store *ledger.Store

	ep := &funcEndpoint{name: "pausing"}
	ep.fn = func(_ context.Context, messages []provider.Message) (string, error) {
		// Pause the active record mid-run, as an operator would.
		active, err := store.ListActive()
		if err == nil && len(active) == 1 && active[0].Status == ledger.StatusRunning {
			store.Pause(active[0].ID, "operator request")
		}
		return "paused-era answer", nil
	}
	eng, store = newTestEngine(t, fixedPlanner(diamondPlan(task.PolicySequential)), ep, nil)

	res, err := eng.Execute(context.Background(), "pausable task", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Paused {
		t.Fatal("result should report the pause")
	}
	if len(res.Outputs) != 1 {
		t.Errorf("outputs = %d, want 1 (dispatched call finishes, later waves do not start)", len(res.Outputs))
	}

	rec, _ := store.Get(res.RecordID)
	if rec.Status != ledger.StatusPaused {
		t.Errorf("record status = %q, want paused", rec.Status)
	}
	if got := rec.State("A").Status; got != ledger.StatusCompleted {
		t.Errorf("dispatched subtask A = %q, want completed", got)
	}
}

func TestResumeFinishesPausedRun(t *testing.T) {
	var store *ledger.Store
	pauseOnce := true

	ep := &funcEndpoint{name: "resumable"}
	ep.fn = func(_ context.Context, messages []provider.Message) (string, error) {
		if pauseOnce {
			pauseOnce = false
			active, _ := store.ListActive()
			if len(active) == 1 {
				store.Pause(active[0].ID, "checkpoint")
			}
		}
		return "answer", nil
	}
	eng, s := newTestEngine(t, fixedPlanner(diamondPlan(task.PolicySequential)), ep, nil)
	store = s

	paused, err := eng.Execute(context.Background(), "long task", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !paused.Paused {
		t.Fatal("first run should pause")
	}

	res, err := eng.Resume(context.Background(), paused.RecordID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if res.Paused {
		t.Fatal("resumed run should finish")
	}
	if len(res.Outputs) != 3 {
		t.Fatalf("outputs = %d, want all 3 after resume", len(res.Outputs))
	}

	rec, _ := store.Get(paused.RecordID)
	if rec.Status != ledger.StatusCompleted {
		t.Errorf("record status = %q, want completed", rec.Status)
	}
}

func TestResumeUnknownRecord(t *testing.T) {
	ep := &echoEndpoint{}
	eng, _ := newTestEngine(t, fixedPlanner(diamondPlan(task.PolicyMixed)), ep, nil)

	_, err := eng.Resume(context.Background(), "no-such-record")
	if !errors.Is(err, errors.ErrRecordNotFound) {
		t.Errorf("error = %v, want ErrRecordNotFound", err)
	}
}

func TestResumeCompletedRecordIsInvalid(t *testing.T) {
	ep := &echoEndpoint{}
	eng, store := newTestEngine(t, fixedPlanner(diamondPlan(task.PolicyMixed)), ep, nil)

	res, err := eng.Execute(context.Background(), "finished task", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	rec, _ := store.Get(res.RecordID)
	if rec.Status != ledger.StatusCompleted {
		t.Fatalf("precondition: record should be completed, got %q", rec.Status)
	}

	_, err = eng.Resume(context.Background(), res.RecordID)
	if !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("error = %v, want ErrInvalidTransition", err)
	}
}

func TestTranscriptRecordsMilestones(t *testing.T) {
	ep := &echoEndpoint{}
	eng, _ := newTestEngine(t, fixedPlanner(diamondPlan(task.PolicyMixed)), ep, nil)

	res, err := eng.Execute(context.Background(), "observable task", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	joined := strings.Join(res.Transcript, "\n")
	for _, want := range []string{"starting run", "decomposition complete", "worker created", "subtask A started", "run complete"} {
		if !strings.Contains(joined, want) {
			t.Errorf("transcript missing %q:\n%s", want, joined)
		}
	}
}
