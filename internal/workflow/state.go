package workflow

import "time"

// StateTag names one variant of WorkflowState. The FSM in §4.1 of the spec
// is tagged-union shaped; Go expresses that as a discriminator field plus a
// set of payload fields that are only meaningful for specific tags, the same
// shape the teacher uses for WorkflowInstance's auxiliary fields alongside
// its State.
type StateTag string

const (
	StateInitializing  StateTag = "initializing"
	StateReady         StateTag = "ready"
	StatePlanning      StateTag = "planning"
	StateExecuting     StateTag = "executing"
	StateVerifying     StateTag = "verifying"
	StatePhaseComplete StateTag = "phase_complete"
	StateCompleted     StateTag = "completed"
	StateFailed        StateTag = "failed"
	StateSuspended     StateTag = "suspended"
	StateTimeout       StateTag = "timeout"
	StateCancelled     StateTag = "cancelled"
	StateAbandoned     StateTag = "abandoned"
)

// State is one tagged variant of the session FSM, carrying only the payload
// fields relevant to its Tag. Everything else is the zero value; zero
// strings, numbers and booleans are omitted from JSON, while the time.Time
// fields are always written (omitempty does not apply to structs).
type State struct {
	Tag StateTag `json:"tag"`

	// Ready
	SnapshotID string `json:"snapshot_id,omitempty"`

	// Planning, Executing, Verifying, PhaseComplete
	PhaseID string `json:"phase_id,omitempty"`

	// Executing
	TaskID string `json:"task_id,omitempty"`

	// Failed
	Error       string `json:"error,omitempty"`
	Recoverable bool    `json:"recoverable,omitempty"`

	// Suspended, Cancelled
	Reason string `json:"reason,omitempty"`

	// Suspended
	SuspendedAt time.Time `json:"suspended_at,omitempty"`

	// Timeout
	Deadline     time.Time `json:"deadline,omitempty"`
	ExceededByMs int64     `json:"exceeded_by_ms,omitempty"`

	// Cancelled
	CancelledBy string `json:"cancelled_by,omitempty"`

	// Abandoned
	LastActivity time.Time `json:"last_activity,omitempty"`
	DaysInactive int       `json:"days_inactive,omitempty"`
}

// Initial returns the Initializing state every session is created in.
func Initial() State { return State{Tag: StateInitializing} }

// IsTerminal reports whether the session can never transition again.
// Per the spec's invariant 1, the formal terminal set is exactly
// Completed and Failed{recoverable:false} — see DESIGN.md's "Open
// Question Decisions" for why Cancelled/Timeout/Abandoned, despite having
// no outgoing matrix rows, are not counted here.
func (s State) IsTerminal() bool {
	if s.Tag == StateCompleted {
		return true
	}
	if s.Tag == StateFailed && !s.Recoverable {
		return true
	}
	return false
}

// Display returns the short display tag stored in current_state_tag (§6.3).
func (s State) Display() string { return string(s.Tag) }
