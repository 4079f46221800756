package workflow

import (
	"context"

	"github.com/flowctl/flowctl/internal/ids"
)

// Store is the persistence port the engine depends on (C3, §6.3). A
// concrete implementation lives in internal/store, built on
// ncruces/go-sqlite3 behind a small embed.FS migration runner.
type Store interface {
	// CreateSession inserts a new session row in Initializing state.
	// A violation of the one-active-session-per-task unique index comes
	// back as a *PersistenceError that IsDuplicateTaskConstraint recognizes.
	CreateSession(ctx context.Context, s *Session) error

	// GetSession loads a session by id. Returns *SessionNotFoundError if
	// absent.
	GetSession(ctx context.Context, id ids.SessionID) (*Session, error)

	// ApplyTransition persists the session's new state, a Transition row,
	// and a StateTransition Event row in one database transaction, guarded
	// by expectedVersion (invariant 4). Returns
	// *OptimisticConcurrencyConflictError if the stored version no longer
	// matches expectedVersion.
	ApplyTransition(ctx context.Context, sessionID ids.SessionID, expectedVersion int64, next State, tr Transition, ev Event) (*Session, error)

	// ListTransitions returns Transition rows for a session, newest first.
	// limit <= 0 means unbounded.
	ListTransitions(ctx context.Context, sessionID ids.SessionID, limit int) ([]Transition, error)

	// ActiveSessions returns every session not in a terminal state.
	ActiveSessions(ctx context.Context) ([]*Session, error)
}
