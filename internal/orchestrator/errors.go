package orchestrator

import (
	"fmt"
	"time"

	"github.com/flowctl/flowctl/internal/policy"
)

// PolicyViolationError is returned when a guarded transition is rejected by
// the Policy Guard. No FSM change occurred.
type PolicyViolationError struct {
	Result policy.PolicyResult
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy violation: %s", e.Result.Summary())
}

// ContextError wraps a Context Scout discovery failure encountered during a
// guarded transition.
type ContextError struct {
	Message string
	Err     error
}

func (e *ContextError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("context error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("context error: %s", e.Message)
}

func (e *ContextError) Unwrap() error { return e.Err }

// CompensationFailedError reports that the compensation path was exhausted
// for at least one recorded effect.
type CompensationFailedError struct {
	Action string
	Reason string
}

func (e *CompensationFailedError) Error() string {
	return fmt.Sprintf("compensation failed: %s: %s", e.Action, e.Reason)
}

// TimeoutError reports a bounded operation (policy subprocess, database
// call) exceeding its allotted duration. Policy subprocess timeouts are
// translated into Error-severity violations by the policy itself (§7); this
// type is reserved for the remaining boundary — a database call that
// exceeds ctx's deadline.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s exceeded %s", e.Operation, e.Duration)
}

// CancelledError reports that a session cancellation was requested and
// honored mid-operation.
type CancelledError struct {
	Reason string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("cancelled: %s", e.Reason)
}
