package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flowctl/flowctl/internal/ids"
)

// InvalidTransitionError reports a (from, trigger) pair with no matrix row.
type InvalidTransitionError struct {
	From    StateTag
	Trigger TriggerTag
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: no rule for trigger %q from state %q", e.Trigger, e.From)
}

// SessionNotFoundError reports a lookup miss by session id.
type SessionNotFoundError struct {
	SessionID ids.SessionID
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionID)
}

// OptimisticConcurrencyConflictError reports a stale-version write rejection.
type OptimisticConcurrencyConflictError struct {
	SessionID ids.SessionID
}

func (e *OptimisticConcurrencyConflictError) Error() string {
	return fmt.Sprintf("optimistic concurrency conflict on session %s", e.SessionID)
}

// PersistenceError wraps a Database Provider I/O failure.
type PersistenceError struct {
	Message string
	Err     error
}

func (e *PersistenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("persistence: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("persistence: %s", e.Message)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsDuplicateTaskConstraint reports whether err wraps a violation of the
// Database Provider's partial unique index on task_id (§6.3), the
// concurrent-write backstop behind Session Manager's own pre-insert check
// (invariant 1). The check is string-based rather than a driver-specific
// typed error: sqlite's constraint-violation message text
// ("UNIQUE constraint failed: <table>.<column>") is part of its stable
// wire format, not an implementation detail of any one driver.
func IsDuplicateTaskConstraint(err error) bool {
	var persist *PersistenceError
	if !errors.As(err, &persist) || persist.Err == nil {
		return false
	}
	msg := persist.Err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, "task_id")
}
