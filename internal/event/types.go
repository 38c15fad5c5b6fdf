package event

import "time"

// Event is the interface all published events implement.
type Event interface {
	// EventType returns a stable identifier used for subscription routing.
	EventType() string
}

// Event type identifiers.
const (
	TypeProgress        = "progress"
	TypeFallbackUsed    = "fallback_used"
	TypeSubtaskStarted  = "subtask_started"
	TypeSubtaskFinished = "subtask_finished"
)

// ProgressEvent reports an execution milestone: decomposition done, worker
// created, review started, run completed, and so on. Percent is in the
// range 0-100, or negative when no meaningful percentage exists.
type ProgressEvent struct {
	Message   string
	Percent   float64
	Timestamp time.Time
}

// EventType returns the event type identifier.
func (e ProgressEvent) EventType() string { return TypeProgress }

// FallbackUsedEvent reports that an invocation succeeded against a
// fallback endpoint rather than the primary.
type FallbackUsedEvent struct {
	Endpoint  string
	Position  int // index of the endpoint in the chain; 0 is the primary
	Timestamp time.Time
}

// EventType returns the event type identifier.
func (e FallbackUsedEvent) EventType() string { return TypeFallbackUsed }

// SubtaskStartedEvent reports that a subtask began executing.
type SubtaskStartedEvent struct {
	SubtaskID string
	WorkerID  string
	Timestamp time.Time
}

// EventType returns the event type identifier.
func (e SubtaskStartedEvent) EventType() string { return TypeSubtaskStarted }

// SubtaskFinishedEvent reports that a subtask reached a terminal state.
type SubtaskFinishedEvent struct {
	SubtaskID string
	WorkerID  string
	Failed    bool
	Timestamp time.Time
}

// EventType returns the event type identifier.
func (e SubtaskFinishedEvent) EventType() string { return TypeSubtaskFinished }
