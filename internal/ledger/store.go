package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/taskloom/taskloom/internal/errors"
	"github.com/taskloom/taskloom/internal/task"
)

// Store persists run records as one JSON file per record under a base
// directory. It is safe for concurrent use within a process; every
// mutation rewrites the whole record atomically.
type Store struct {
	dir string
	mu  sync.Mutex

	// now is injectable for timestamp tests.
	now func() time.Time
}

// NewStore opens (creating if needed) a record store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Create persists a new pending record for the given task and plan and
// returns it.
func (s *Store) Create(taskText, contextText string, plan *task.Plan) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	rec := &Record{
		ID:            NewRecordID(now),
		TaskText:      taskText,
		ContextText:   contextText,
		Status:        StatusPending,
		Policy:        plan.Policy,
		NeedsReview:   plan.NeedsReview,
		Workers:       plan.Workers,
		Subtasks:      plan.Subtasks,
		SubtaskStates: make(map[string]*SubtaskState, len(plan.Subtasks)),
		// Empty slice so new record files carry the completed_outputs
		// key rather than null.
		CompletedOutputs: []CompletedOutput{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, st := range plan.Subtasks {
		rec.SubtaskStates[st.ID] = &SubtaskState{Status: StatusPending}
	}

	if err := s.save(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get loads a record by ID.
func (s *Store) Get(id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

// List returns all records ordered by ID, which is creation order.
func (s *Store) List() ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read ledger directory: %w", err)
	}

	var records []*Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		rec, err := s.load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			// A torn or foreign file must not hide the rest of the ledger.
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// ListActive returns the records that are not in a terminal state.
func (s *Store) ListActive() ([]*Record, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, rec := range all {
		if !rec.Status.Terminal() {
			active = append(active, rec)
		}
	}
	return active, nil
}

// UpdateStatus moves a record to the given status.
func (s *Store) UpdateStatus(id string, status Status) (*Record, error) {
	return s.mutate(id, func(rec *Record) error {
		rec.Status = status
		return nil
	})
}

// StartSubtask marks a subtask running and stamps its start time.
func (s *Store) StartSubtask(id, subtaskID string) (*Record, error) {
	return s.mutate(id, func(rec *Record) error {
		state := rec.State(subtaskID)
		if state == nil {
			return fmt.Errorf("record %s: unknown subtask %q", id, subtaskID)
		}
		started := s.now().UTC()
		state.Status = StatusRunning
		state.StartedAt = &started
		return nil
	})
}

// FinishSubtask records a subtask's outcome and stamps its finish time.
// A non-empty errMsg marks the subtask failed; otherwise it completes
// with the given output.
func (s *Store) FinishSubtask(id, subtaskID, output, errMsg string) (*Record, error) {
	return s.mutate(id, func(rec *Record) error {
		state := rec.State(subtaskID)
		if state == nil {
			return fmt.Errorf("record %s: unknown subtask %q", id, subtaskID)
		}
		finished := s.now().UTC()
		state.FinishedAt = &finished
		if errMsg != "" {
			state.Status = StatusFailed
			state.Error = errMsg
			return nil
		}
		state.Status = StatusCompleted
		state.Output = output
		rec.CompletedOutputs = append(rec.CompletedOutputs, CompletedOutput{
			SubtaskID: subtaskID,
			Output:    output,
		})
		return nil
	})
}

// Pause moves a running record to paused. Pausing any other state is an
// invalid transition.
func (s *Store) Pause(id, reason string) (*Record, error) {
	return s.mutate(id, func(rec *Record) error {
		if rec.Status != StatusRunning {
			return fmt.Errorf("%w: pause from %q", errors.ErrInvalidTransition, rec.Status)
		}
		rec.Status = StatusPaused
		rec.PauseReason = reason
		return nil
	})
}

// Resume moves a paused record back to running. Resuming any other state
// is an invalid transition.
func (s *Store) Resume(id string) (*Record, error) {
	return s.mutate(id, func(rec *Record) error {
		if rec.Status != StatusPaused {
			return fmt.Errorf("%w: resume from %q", errors.ErrInvalidTransition, rec.Status)
		}
		rec.Status = StatusRunning
		rec.PauseReason = ""
		return nil
	})
}

// Complete moves a record to completed with its final summary.
func (s *Store) Complete(id, summary string) (*Record, error) {
	return s.mutate(id, func(rec *Record) error {
		rec.Status = StatusCompleted
		rec.Summary = summary
		return nil
	})
}

// Fail moves a record to failed with the error message.
func (s *Store) Fail(id, errMsg string) (*Record, error) {
	return s.mutate(id, func(rec *Record) error {
		rec.Status = StatusFailed
		rec.Error = errMsg
		return nil
	})
}

// Delete removes a record.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", errors.ErrRecordNotFound, id)
		}
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// Cleanup deletes terminal records older than maxAge and returns how many
// were removed. Active records are never cleaned up regardless of age.
func (s *Store) Cleanup(maxAge time.Duration) (int, error) {
	all, err := s.List()
	if err != nil {
		return 0, err
	}

	cutoff := s.now().UTC().Add(-maxAge)
	removed := 0
	for _, rec := range all {
		if !rec.Status.Terminal() || rec.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.Delete(rec.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// mutate loads a record, applies fn, and rewrites the whole file.
func (s *Store) mutate(id string, fn func(*Record) error) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	rec.UpdatedAt = s.now().UTC()
	if err := s.save(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) load(id string) (*Record, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errors.ErrRecordNotFound, id)
		}
		return nil, fmt.Errorf("read record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return &rec, nil
}

func (s *Store) save(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return atomicWriteFile(s.path(rec.ID), data, 0644)
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// atomicWriteFile writes to a temp file in the target directory and
// renames it into place, so readers never observe a partial record.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	success = true
	return nil
}
