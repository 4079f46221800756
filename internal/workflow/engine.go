// Package workflow implements the Workflow Engine (C7): a persistent finite
// state machine per work item with append-only audit and point-in-time
// reconstruction, grounded on the teacher's controlplane.WorkflowState /
// validTransitions / WorkflowInstance.TransitionTo, generalized from a flat
//6-state machine to the spec's 12-variant payload-carrying state machine.
package workflow

import (
	"context"
	"sort"
	"time"

	"github.com/flowctl/flowctl/internal/ids"
)

// Engine implements the Workflow Engine operations of spec.md §4.1.
type Engine struct {
	store Store
	clock func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source. Used by tests that need
// deterministic Suspended.suspended_at / Timeout.exceeded_by_ms values.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// NewEngine constructs an Engine backed by store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{store: store, clock: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateSession creates a new session in the Initializing state.
func (e *Engine) CreateSession(ctx context.Context, projectID, taskID, operatorID string, plan CompensationPlan) (*Session, error) {
	now := e.clock()
	s := &Session{
		ID:               ids.NewSessionID(),
		ProjectID:        projectID,
		TaskID:           taskID,
		OperatorID:       operatorID,
		CurrentState:     Initial(),
		CompensationPlan: plan,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastActivityAt:   now,
	}
	if err := e.store.CreateSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Transition validates trig against the matrix from the session's current
// state, then persists the session update, the Transition row, and the
// StateTransition Event row atomically (invariant 5).
//
// guardResult, when non-nil, is attached to the Transition row; the caller
// (the orchestrator) is expected to have already rejected the trigger if
// guardResult.Allowed is false — Transition does not itself consult policy.
func (e *Engine) Transition(ctx context.Context, sessionID ids.SessionID, trig Trigger, guardResult *GuardResultSummary) (*Transition, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Cancel on a terminal state is a no-op returning the same state
	// (idempotent termination, §8).
	if trig.Tag == TriggerCancel && session.CurrentState.IsTerminal() {
		now := e.clock()
		return &Transition{
			ID:        ids.NewTransitionID(),
			SessionID: sessionID,
			From:      session.CurrentState,
			To:        session.CurrentState,
			Trigger:   trig,
			Timestamp: now,
		}, nil
	}

	now := e.clock()
	next, err := Apply(session.CurrentState, trig, now, session.LastActivityAt)
	if err != nil {
		return nil, err
	}

	tr := Transition{
		ID:          ids.NewTransitionID(),
		SessionID:   sessionID,
		From:        session.CurrentState,
		To:          next,
		Trigger:     trig,
		GuardResult: guardResult,
		Timestamp:   now,
	}
	from, to := session.CurrentState, next
	ev := Event{
		ID:        ids.NewEventID(),
		SessionID: sessionID,
		EventType: EventStateTransitioned,
		FromState: &from,
		ToState:   &to,
		Trigger:   &trig,
		Timestamp: now,
	}

	if _, err := e.store.ApplyTransition(ctx, sessionID, session.Version, next, tr, ev); err != nil {
		return nil, err
	}
	return &tr, nil
}

// CurrentState returns the session's current state with a single-row read.
func (e *Engine) CurrentState(ctx context.Context, sessionID ids.SessionID) (State, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return State{}, err
	}
	return session.CurrentState, nil
}

// History returns the session's Transition rows, newest first. limit <= 0
// means unbounded.
func (e *Engine) History(ctx context.Context, sessionID ids.SessionID, limit int) ([]Transition, error) {
	return e.store.ListTransitions(ctx, sessionID, limit)
}

// StateAt reconstructs the session's state at timestamp t by replaying
// transitions with timestamp <= t from the session's initial state
// (invariant 7, testable property in §8).
func (e *Engine) StateAt(ctx context.Context, sessionID ids.SessionID, t time.Time) (State, error) {
	transitions, err := e.store.ListTransitions(ctx, sessionID, 0)
	if err != nil {
		return State{}, err
	}
	// ListTransitions returns newest first; sort ascending for replay.
	sort.Slice(transitions, func(i, j int) bool {
		return transitions[i].Timestamp.Before(transitions[j].Timestamp)
	})

	state := Initial()
	for _, tr := range transitions {
		if tr.Timestamp.After(t) {
			break
		}
		state = tr.To
	}
	return state, nil
}

// ActiveSessions returns all sessions not in a terminal state.
func (e *Engine) ActiveSessions(ctx context.Context) ([]*Session, error) {
	return e.store.ActiveSessions(ctx)
}
