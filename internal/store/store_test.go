package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowctl/flowctl/internal/ids"
	"github.com/flowctl/flowctl/internal/workflow"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteStore(db)
}

func newTestSession(t *testing.T, s *SQLiteStore) *workflow.Session {
	t.Helper()
	return newTestSessionWithTask(t, s, "T-1")
}

func newTestSessionWithTask(t *testing.T, s *SQLiteStore, taskID string) *workflow.Session {
	t.Helper()
	now := time.Now().UTC()
	session := &workflow.Session{
		ID:               ids.NewSessionID(),
		ProjectID:        "proj-1",
		TaskID:           taskID,
		OperatorID:       "op-a",
		CurrentState:     workflow.Initial(),
		CompensationPlan: workflow.NewManualReviewPlan("default"),
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastActivityAt:   now,
	}
	require.NoError(t, s.CreateSession(context.Background(), session))
	return session
}

func TestSQLiteStore_CreateAndGetSession(t *testing.T) {
	s := newTestStore(t)
	created := newTestSession(t, s)

	loaded, err := s.GetSession(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, loaded.ID)
	require.Equal(t, workflow.StateInitializing, loaded.CurrentState.Tag)
	require.Equal(t, workflow.ManualReview, loaded.CompensationPlan.Kind)
	require.Equal(t, int64(1), loaded.Version)
}

func TestSQLiteStore_GetSessionNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSession(context.Background(), ids.NewSessionID())
	require.Error(t, err)
	var notFound *workflow.SessionNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestSQLiteStore_ApplyTransitionPersistsAtomically(t *testing.T) {
	s := newTestStore(t)
	session := newTestSession(t, s)
	ctx := context.Background()

	next := workflow.State{Tag: workflow.StateReady, SnapshotID: "snap-1"}
	tr := workflow.Transition{
		ID:        ids.NewTransitionID(),
		SessionID: session.ID,
		From:      session.CurrentState,
		To:        next,
		Trigger:   workflow.ContextDiscovered("snap-1"),
		Timestamp: time.Now().UTC(),
	}
	from, to := session.CurrentState, next
	ev := workflow.Event{
		ID:        ids.NewEventID(),
		SessionID: session.ID,
		EventType: workflow.EventStateTransitioned,
		FromState: &from,
		ToState:   &to,
		Timestamp: tr.Timestamp,
	}

	updated, err := s.ApplyTransition(ctx, session.ID, session.Version, next, tr, ev)
	require.NoError(t, err)
	require.Equal(t, workflow.StateReady, updated.CurrentState.Tag)
	require.Equal(t, int64(2), updated.Version)

	history, err := s.ListTransitions(ctx, session.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, workflow.StateReady, history[0].To.Tag)
}

func TestSQLiteStore_ApplyTransitionRejectsStaleVersion(t *testing.T) {
	s := newTestStore(t)
	session := newTestSession(t, s)
	ctx := context.Background()

	next := workflow.State{Tag: workflow.StateReady, SnapshotID: "snap-1"}
	tr := workflow.Transition{ID: ids.NewTransitionID(), SessionID: session.ID, From: session.CurrentState, To: next, Trigger: workflow.ContextDiscovered("snap-1"), Timestamp: time.Now().UTC()}
	ev := workflow.Event{ID: ids.NewEventID(), SessionID: session.ID, EventType: workflow.EventStateTransitioned, Timestamp: tr.Timestamp}

	_, err := s.ApplyTransition(ctx, session.ID, 99, next, tr, ev)
	require.Error(t, err)
	var conflict *workflow.OptimisticConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)

	history, err := s.ListTransitions(ctx, session.ID, 0)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestSQLiteStore_ActiveSessionsExcludesTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	active := newTestSessionWithTask(t, s, "T-1")
	completed := newTestSessionWithTask(t, s, "T-2")

	next := workflow.State{Tag: workflow.StateCompleted}
	tr := workflow.Transition{ID: ids.NewTransitionID(), SessionID: completed.ID, From: completed.CurrentState, To: next, Trigger: workflow.EndSession(), Timestamp: time.Now().UTC()}
	ev := workflow.Event{ID: ids.NewEventID(), SessionID: completed.ID, EventType: workflow.EventStateTransitioned, Timestamp: tr.Timestamp}
	_, err := s.ApplyTransition(ctx, completed.ID, completed.Version, next, tr, ev)
	require.NoError(t, err)

	sessions, err := s.ActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, active.ID, sessions[0].ID)
}

func TestSQLiteStore_CreateSessionRejectsSecondActiveSessionForSameTask(t *testing.T) {
	s := newTestStore(t)
	newTestSessionWithTask(t, s, "T-1")

	now := time.Now().UTC()
	dup := &workflow.Session{
		ID:               ids.NewSessionID(),
		ProjectID:        "proj-1",
		TaskID:           "T-1",
		OperatorID:       "op-b",
		CurrentState:     workflow.Initial(),
		CompensationPlan: workflow.NewManualReviewPlan("default"),
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastActivityAt:   now,
	}
	err := s.CreateSession(context.Background(), dup)
	require.Error(t, err)
	require.True(t, workflow.IsDuplicateTaskConstraint(err))
}

func TestSQLiteStore_CreateSessionAllowsSameTaskOnceFirstIsTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	first := newTestSessionWithTask(t, s, "T-1")

	next := workflow.State{Tag: workflow.StateCompleted}
	tr := workflow.Transition{ID: ids.NewTransitionID(), SessionID: first.ID, From: first.CurrentState, To: next, Trigger: workflow.EndSession(), Timestamp: time.Now().UTC()}
	ev := workflow.Event{ID: ids.NewEventID(), SessionID: first.ID, EventType: workflow.EventStateTransitioned, Timestamp: tr.Timestamp}
	_, err := s.ApplyTransition(ctx, first.ID, first.Version, next, tr, ev)
	require.NoError(t, err)

	newTestSessionWithTask(t, s, "T-1")
}

func TestSQLiteStore_ListByProject(t *testing.T) {
	s := newTestStore(t)
	a := newTestSessionWithTask(t, s, "T-1")
	b := newTestSessionWithTask(t, s, "T-2")

	sessions, err := s.ListByProject(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	ids := []string{sessions[0].ID.String(), sessions[1].ID.String()}
	require.ElementsMatch(t, ids, []string{a.ID.String(), b.ID.String()})
}
