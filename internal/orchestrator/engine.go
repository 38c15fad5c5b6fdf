// Package orchestrator runs task graphs: it plans, builds workers per
// capability tier, executes subtasks under the plan's policy, and
// aggregates outputs into a final summary. Results are memoized and every
// run is journaled so it can be paused, inspected, and resumed.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/taskloom/taskloom/internal/cache"
	"github.com/taskloom/taskloom/internal/errors"
	"github.com/taskloom/taskloom/internal/ledger"
	"github.com/taskloom/taskloom/internal/logging"
	"github.com/taskloom/taskloom/internal/provider"
	"github.com/taskloom/taskloom/internal/task"
)

// TierResolver maps a capability tier to the endpoint chain that services
// it. The configuration layer supplies the implementation.
type TierResolver func(tier task.Tier) (provider.Endpoint, error)

// Config controls engine behavior.
type Config struct {
	// MaxParallel bounds concurrent subtask invocations in parallel and
	// wavefront batches.
	MaxParallel int

	// ReviewTier is the capability tier of the synthesized reviewer.
	ReviewTier task.Tier
}

// DefaultConfig returns the standard engine settings.
func DefaultConfig() Config {
	return Config{
		MaxParallel: 3,
		ReviewTier:  task.TierHigh,
	}
}

// Result is the outcome of one orchestration run.
type Result struct {
	// RecordID names the ledger record for this run, empty on cache hits.
	RecordID string

	// Summary is the final aggregated answer.
	Summary string

	// Outputs holds every completed subtask's output, review included.
	Outputs []task.WorkerOutput

	// Transcript is the ordered progress messages emitted during the run.
	Transcript []string

	// Paused is true when the run stopped at a pause request before
	// finishing; Outputs holds the work completed so far.
	Paused bool
}

// Engine coordinates one run at a time per call; a single Engine may serve
// concurrent Execute calls, each against its own ledger record.
type Engine struct {
	planner  Planner
	resolver TierResolver
	cache    *cache.Cache
	store    *ledger.Store
	notifier Notifier
	log      *logging.Logger
	cfg      Config
}

// NewEngine wires an engine. cache may be nil (no memoization beyond a
// disabled cache), notifier and log may be nil.
func NewEngine(planner Planner, resolver TierResolver, c *cache.Cache, store *ledger.Store, notifier Notifier, log *logging.Logger, cfg Config) *Engine {
	if c == nil {
		c = cache.New(cache.Config{Enabled: false})
	}
	if notifier == nil {
		notifier = NopNotifier()
	}
	if log == nil {
		log = logging.NopLogger()
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultConfig().MaxParallel
	}
	if !cfg.ReviewTier.IsValid() {
		cfg.ReviewTier = task.TierHigh
	}
	return &Engine{
		planner:  planner,
		resolver: resolver,
		cache:    c,
		store:    store,
		notifier: notifier,
		log:      log.WithComponent("orchestrator"),
		cfg:      cfg,
	}
}

// Execute runs one task end to end: cache check, decomposition, worker
// creation, graph execution under the plan's policy, optional review, and
// summary aggregation. A terminal provider failure aborts the run and
// marks its record failed; a dependency cycle under the mixed policy halts
// execution and returns the partial outputs instead of failing.
func (e *Engine) Execute(ctx context.Context, taskText, contextText string) (*Result, error) {
	r := e.newRun(taskText, contextText)

	r.notify("starting run", 0)
	if cached, ok := e.cache.Get(taskText, contextText); ok {
		r.notify("served from cache", 100)
		e.log.Info("cache hit", "task", truncate(taskText, 80))
		return &Result{Summary: cached, Transcript: r.transcript}, nil
	}

	plan := e.decompose(ctx, r, taskText, contextText)

	rec, err := e.store.Create(taskText, contextText, plan)
	if err != nil {
		return nil, fmt.Errorf("create ledger record: %w", err)
	}
	r.record = rec
	r.plan = plan

	if _, err := e.store.UpdateStatus(rec.ID, ledger.StatusRunning); err != nil {
		return nil, fmt.Errorf("mark record running: %w", err)
	}

	if err := r.buildWorkers(); err != nil {
		e.failRun(r, err)
		return nil, err
	}

	return e.finishRun(ctx, r)
}

// Resume continues a previously persisted run: paused records move back to
// running, pending and running (crashed) records pick up their unfinished
// subtasks. Completed work is never redone.
func (e *Engine) Resume(ctx context.Context, recordID string) (*Result, error) {
	rec, err := e.store.Get(recordID)
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case ledger.StatusPaused:
		if rec, err = e.store.Resume(recordID); err != nil {
			return nil, err
		}
	case ledger.StatusPending:
		if rec, err = e.store.UpdateStatus(recordID, ledger.StatusRunning); err != nil {
			return nil, err
		}
	case ledger.StatusRunning:
		// Crash recovery: the record was left running by a dead process.
	default:
		return nil, fmt.Errorf("%w: resume from %q", errors.ErrInvalidTransition, rec.Status)
	}

	plan := &task.Plan{
		Summary:     rec.Summary,
		Workers:     rec.Workers,
		Subtasks:    rec.Subtasks,
		Policy:      rec.Policy,
		NeedsReview: rec.NeedsReview,
	}
	plan.Groups = task.ExecutionGroups(plan.Subtasks)

	r := e.newRun(rec.TaskText, rec.ContextText)
	r.record = rec
	r.plan = plan
	r.seedFromRecord(rec)
	r.notify(fmt.Sprintf("resuming run %s (%d subtasks remaining)", rec.ID, len(rec.PendingSubtasks())), -1)

	if err := r.buildWorkers(); err != nil {
		e.failRun(r, err)
		return nil, err
	}

	return e.finishRun(ctx, r)
}

// finishRun executes the graph, runs the review pass, and aggregates.
func (e *Engine) finishRun(ctx context.Context, r *run) (*Result, error) {
	var err error
	switch r.plan.Policy {
	case task.PolicyParallel:
		err = r.runParallel(ctx)
	case task.PolicySequential:
		err = r.runSequential(ctx)
	default:
		err = r.runWavefront(ctx)
	}
	if err != nil {
		e.failRun(r, err)
		return nil, err
	}

	if r.paused {
		r.notify("run paused", -1)
		return &Result{
			RecordID:   r.record.ID,
			Outputs:    r.orderedOutputs(),
			Transcript: r.transcript,
			Paused:     true,
		}, nil
	}

	outputs := r.orderedOutputs()
	if r.plan.NeedsReview && len(outputs) > 0 {
		r.notify("starting review pass", -1)
		review, err := e.review(ctx, r, outputs)
		if err != nil {
			e.failRun(r, err)
			return nil, err
		}
		outputs = append(outputs, *review)
	}

	r.notify("summarizing outputs", -1)
	summary := buildSummary(r.plan, outputs)

	if _, err := e.store.Complete(r.record.ID, summary); err != nil {
		return nil, fmt.Errorf("mark record completed: %w", err)
	}
	e.cache.Set(r.taskText, r.contextText, summary)
	r.notify("run complete", 100)

	return &Result{
		RecordID:   r.record.ID,
		Summary:    summary,
		Outputs:    outputs,
		Transcript: r.transcript,
	}, nil
}

// decompose asks the planner for a graph and degrades to the single-worker
// fallback plan when the planner fails or produces an unusable graph.
func (e *Engine) decompose(ctx context.Context, r *run, taskText, contextText string) *task.Plan {
	plan, err := e.planner.Plan(ctx, taskText, contextText)
	if err == nil {
		err = task.ValidatePlanStrict(plan)
	}
	if err != nil {
		e.log.Warn("planner output unusable, using fallback plan", "error", err)
		r.notify("decomposition failed, falling back to a single worker", -1)
		plan = task.FallbackPlan(taskText)
	}
	r.notify(fmt.Sprintf("decomposition complete: %d workers, %d subtasks (%s policy)",
		len(plan.Workers), len(plan.Subtasks), plan.Policy), 10)
	return plan
}

// review synthesizes an ad hoc reviewer worker, hands it the concatenation
// of all outputs, and returns the review as one more output.
func (e *Engine) review(ctx context.Context, r *run, outputs []task.WorkerOutput) (*task.WorkerOutput, error) {
	endpoint, err := e.resolver(e.cfg.ReviewTier)
	if err != nil {
		return nil, fmt.Errorf("resolve review tier: %w", err)
	}

	var body strings.Builder
	body.WriteString("Original task:\n")
	body.WriteString(r.taskText)
	body.WriteString("\n\nWorker outputs to review:\n")
	for _, out := range outputs {
		fmt.Fprintf(&body, "\n--- %s (%s) ---\n%s\n", out.WorkerName, out.SubtaskID, out.Content)
	}

	content, err := endpoint.Invoke(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: "You are a meticulous reviewer. Assess the worker outputs against the original task: flag gaps, contradictions, and errors, then give a consolidated verdict."},
		{Role: provider.RoleUser, Content: body.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("review pass: %w", err)
	}

	r.notify("review complete", -1)
	return &task.WorkerOutput{
		SubtaskID:  "review",
		WorkerID:   "reviewer",
		WorkerName: "Reviewer",
		Content:    content,
		Artifacts:  ExtractArtifacts(content),
	}, nil
}

// failRun marks the ledger record failed, keeping the error for diagnosis.
func (e *Engine) failRun(r *run, err error) {
	e.log.Error("run failed", "record", r.record.ID, "error", err)
	r.notify("run failed: "+err.Error(), -1)
	if _, ferr := e.store.Fail(r.record.ID, err.Error()); ferr != nil {
		e.log.Error("failed to mark record failed", "record", r.record.ID, "error", ferr)
	}
}

// buildSummary composes the final answer: the plan summary followed by
// each output under its worker's heading.
func buildSummary(plan *task.Plan, outputs []task.WorkerOutput) string {
	var sb strings.Builder
	if strings.TrimSpace(plan.Summary) != "" {
		sb.WriteString(plan.Summary)
		sb.WriteString("\n\n")
	}
	for i, out := range outputs {
		name := out.WorkerName
		if name == "" {
			name = out.WorkerID
		}
		fmt.Fprintf(&sb, "## %s\n\n%s", name, strings.TrimSpace(out.Content))
		if i < len(outputs)-1 {
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// ---- run state ----

// worker is the runtime pairing of a worker definition with its resolved
// endpoint chain and private transcript.
type worker struct {
	def      task.Worker
	endpoint provider.Endpoint

	mu         sync.Mutex
	transcript []provider.Message
}

// invoke appends the prompt to the worker's transcript, calls the
// endpoint, and records the reply. Each worker owns only its own
// transcript, so two subtasks on the same worker serialize here.
func (w *worker) invoke(ctx context.Context, prompt string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.transcript) == 0 {
		w.transcript = append(w.transcript, provider.Message{Role: provider.RoleSystem, Content: w.def.Role})
	}
	w.transcript = append(w.transcript, provider.Message{Role: provider.RoleUser, Content: prompt})

	reply, err := w.endpoint.Invoke(ctx, w.transcript)
	if err != nil {
		// Drop the unanswered turn so a later subtask starts clean.
		w.transcript = w.transcript[:len(w.transcript)-1]
		return "", err
	}
	w.transcript = append(w.transcript, provider.Message{Role: provider.RoleAssistant, Content: reply})
	return reply, nil
}

// run is the mutable state of one execution, shared across policies.
type run struct {
	engine      *Engine
	taskText    string
	contextText string
	plan        *task.Plan
	record      *ledger.Record
	workers     map[string]*worker
	paused      bool

	mu         sync.Mutex
	outputs    map[string]task.WorkerOutput
	completed  map[string]bool
	skipped    map[string]bool
	transcript []string
}

func (e *Engine) newRun(taskText, contextText string) *run {
	return &run{
		engine:      e,
		taskText:    taskText,
		contextText: contextText,
		workers:     make(map[string]*worker),
		outputs:     make(map[string]task.WorkerOutput),
		completed:   make(map[string]bool),
		skipped:     make(map[string]bool),
	}
}

// notify records the message in the run transcript and forwards it.
func (r *run) notify(message string, percent float64) {
	r.mu.Lock()
	r.transcript = append(r.transcript, message)
	r.mu.Unlock()
	r.engine.notifier.Notify(message, percent)
}

// buildWorkers resolves each declared worker's endpoint chain by tier.
func (r *run) buildWorkers() error {
	for _, def := range r.plan.Workers {
		endpoint, err := r.engine.resolver(def.Tier)
		if err != nil {
			return fmt.Errorf("resolve tier %q for worker %s: %w", def.Tier, def.ID, err)
		}
		r.workers[def.ID] = &worker{def: def, endpoint: endpoint}
		r.notify(fmt.Sprintf("worker created: %s (%s tier)", def.Name, def.Tier), -1)
	}
	return nil
}

// seedFromRecord preloads completed subtask outputs so a resumed run
// skips finished work.
func (r *run) seedFromRecord(rec *ledger.Record) {
	for _, st := range rec.Subtasks {
		state := rec.State(st.ID)
		if state == nil || state.Status != ledger.StatusCompleted {
			continue
		}
		r.completed[st.ID] = true
		name := st.WorkerID
		if w := r.plan.GetWorker(st.WorkerID); w != nil {
			name = w.Name
		}
		r.outputs[st.ID] = task.WorkerOutput{
			SubtaskID:  st.ID,
			WorkerID:   st.WorkerID,
			WorkerName: name,
			Content:    state.Output,
			Artifacts:  ExtractArtifacts(state.Output),
		}
	}
}

// isDone reports whether a subtask already completed (this run or a
// previous one).
func (r *run) isDone(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed[id]
}

// skip marks a subtask as skipped so schedulers stop revisiting it. The
// ledger keeps it pending; only execution moves a subtask forward.
func (r *run) skip(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped[id] = true
}

func (r *run) isSkipped(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped[id]
}

// depsSatisfied reports whether every dependency of st has completed.
func (r *run) depsSatisfied(st task.Subtask) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dep := range st.DependsOn {
		if !r.completed[dep] {
			return false
		}
	}
	return true
}

// depSkipped reports whether some dependency of st was skipped and so can
// never complete. Such a subtask joins the frontier only to be skipped
// with an unmet-dependency warning rather than stalling the wavefront.
func (r *run) depSkipped(st task.Subtask) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dep := range st.DependsOn {
		if r.skipped[dep] {
			return true
		}
	}
	return false
}

// subtaskPrompt builds the message for one subtask, appending the outputs
// of its completed dependencies as context.
func (r *run) subtaskPrompt(st task.Subtask) string {
	var sb strings.Builder
	sb.WriteString(st.Description)

	r.mu.Lock()
	defer r.mu.Unlock()
	wrote := false
	for _, dep := range st.DependsOn {
		out, ok := r.outputs[dep]
		if !ok {
			continue
		}
		if !wrote {
			sb.WriteString("\n\nOutputs from prerequisite subtasks:\n")
			wrote = true
		}
		fmt.Fprintf(&sb, "\n--- %s ---\n%s\n", dep, out.Content)
	}
	return sb.String()
}

// runSubtask executes one subtask end to end: ledger transitions, the
// worker invocation, artifact extraction, and progress notifications.
// Missing workers always skip the subtask with a warning; unmet
// dependencies skip it only when enforceDeps is set (the parallel policy
// ignores declared edges). Provider failures after chain exhaustion
// return the terminal error.
func (r *run) runSubtask(ctx context.Context, st task.Subtask, enforceDeps bool) error {
	w, ok := r.workers[st.WorkerID]
	if !ok {
		r.skip(st.ID)
		r.engine.log.Warn("subtask skipped: worker missing", "subtask", st.ID, "worker", st.WorkerID)
		r.notify(fmt.Sprintf("subtask %s skipped: worker %s missing", st.ID, st.WorkerID), -1)
		return nil
	}
	if enforceDeps && !r.depsSatisfied(st) {
		r.skip(st.ID)
		r.engine.log.Warn("subtask skipped: dependency unsatisfied", "subtask", st.ID)
		r.notify(fmt.Sprintf("subtask %s skipped: unmet dependency", st.ID), -1)
		return nil
	}

	if _, err := r.engine.store.StartSubtask(r.record.ID, st.ID); err != nil {
		return fmt.Errorf("mark subtask running: %w", err)
	}
	r.notify(fmt.Sprintf("subtask %s started (%s)", st.ID, w.def.Name), r.percentDone())

	content, err := w.invoke(ctx, r.subtaskPrompt(st))
	if err != nil {
		if _, lerr := r.engine.store.FinishSubtask(r.record.ID, st.ID, "", err.Error()); lerr != nil {
			r.engine.log.Error("failed to record subtask failure", "subtask", st.ID, "error", lerr)
		}
		return err
	}

	if _, err := r.engine.store.FinishSubtask(r.record.ID, st.ID, content, ""); err != nil {
		return fmt.Errorf("record subtask output: %w", err)
	}

	r.mu.Lock()
	r.completed[st.ID] = true
	r.outputs[st.ID] = task.WorkerOutput{
		SubtaskID:  st.ID,
		WorkerID:   w.def.ID,
		WorkerName: w.def.Name,
		Content:    content,
		Artifacts:  ExtractArtifacts(content),
	}
	r.mu.Unlock()

	r.notify(fmt.Sprintf("subtask %s finished", st.ID), r.percentDone())
	return nil
}

// percentDone estimates overall progress from completed subtasks.
func (r *run) percentDone() float64 {
	if len(r.plan.Subtasks) == 0 {
		return -1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return float64(len(r.completed)) / float64(len(r.plan.Subtasks)) * 90
}

// runBatch executes the given subtasks fully in parallel, bounded by
// MaxParallel, and joins before returning. The first error wins but never
// cancels siblings mid-flight; a dispatched call always finishes.
func (r *run) runBatch(ctx context.Context, subtasks []task.Subtask, enforceDeps bool) error {
	p := pool.New().WithMaxGoroutines(r.engine.cfg.MaxParallel).WithErrors()
	for _, st := range subtasks {
		p.Go(func() error {
			return r.runSubtask(ctx, st, enforceDeps)
		})
	}
	return p.Wait()
}

// runParallel launches every subtask concurrently, ignoring declared
// dependencies entirely: a subtask with edges runs without waiting for
// them. Intended for dependency-free graphs.
func (r *run) runParallel(ctx context.Context) error {
	var batch []task.Subtask
	for _, st := range r.plan.Subtasks {
		if !r.isDone(st.ID) {
			batch = append(batch, st)
		}
	}
	return r.runBatch(ctx, batch, false)
}

// runSequential runs subtasks one at a time in depth-first topological
// order, dependencies before dependents.
func (r *run) runSequential(ctx context.Context) error {
	for _, id := range task.SequentialOrder(r.plan.Subtasks) {
		if r.isDone(id) {
			continue
		}
		if r.checkPaused() {
			return nil
		}
		st := r.plan.GetSubtask(id)
		if st == nil {
			continue
		}
		if err := r.runSubtask(ctx, *st, true); err != nil {
			return err
		}
	}
	return nil
}

// runWavefront repeatedly executes the ready frontier in parallel until
// the graph drains. When pending work remains but nothing is ready, the
// graph has a dependency cycle: execution halts and the outputs produced
// so far stand — deliberately not a failure. A pause request takes effect
// between waves; dispatched calls finish naturally.
func (r *run) runWavefront(ctx context.Context) error {
	for {
		if r.checkPaused() {
			return nil
		}

		var ready []task.Subtask
		pending := 0
		for _, st := range r.plan.Subtasks {
			if r.isDone(st.ID) || r.isSkipped(st.ID) {
				continue
			}
			pending++
			if _, ok := r.workers[st.WorkerID]; !ok {
				// Ready despite deps so the skip warning fires instead
				// of a spurious cycle report.
				ready = append(ready, st)
				continue
			}
			if r.depsSatisfied(st) || r.depSkipped(st) {
				ready = append(ready, st)
			}
		}

		if pending == 0 {
			return nil
		}
		if len(ready) == 0 {
			r.engine.log.Warn("dependency cycle detected, halting with partial outputs", "record", r.record.ID, "pending", pending)
			r.notify(fmt.Sprintf("dependency cycle detected: %d subtasks unreachable, keeping partial outputs", pending), -1)
			return nil
		}

		if err := r.runBatch(ctx, ready, true); err != nil {
			return err
		}
	}
}

// checkPaused consults the ledger for an external pause request.
func (r *run) checkPaused() bool {
	rec, err := r.engine.store.Get(r.record.ID)
	if err != nil {
		return false
	}
	if rec.Status == ledger.StatusPaused {
		r.paused = true
		return true
	}
	return false
}

// orderedOutputs returns completed outputs in subtask declaration order.
func (r *run) orderedOutputs() []task.WorkerOutput {
	r.mu.Lock()
	defer r.mu.Unlock()

	outputs := make([]task.WorkerOutput, 0, len(r.outputs))
	for _, st := range r.plan.Subtasks {
		if out, ok := r.outputs[st.ID]; ok {
			outputs = append(outputs, out)
		}
	}
	return outputs
}
