package compensation

import (
	"context"

	"github.com/flowctl/flowctl/internal/ids"
)

// Store is the persistence port for effects and compensation records
// (workflow_effects, workflow_compensations), implemented by
// internal/store.SQLiteStore.
type Store interface {
	// RecordEffect appends an ExecutionEffect row.
	RecordEffect(ctx context.Context, e Effect) error
	// EffectsSince returns every effect recorded for sessionID, oldest
	// first, since the session's last successful terminal state (the
	// caller is responsible for that boundary; a fresh session simply has
	// no earlier terminal state to bound by).
	EffectsSince(ctx context.Context, sessionID ids.SessionID) ([]Effect, error)
	// RecordCompensation appends a CompensationRecord row.
	RecordCompensation(ctx context.Context, r CompensationRecord) error
	// ListCompensations returns every compensation record for a session,
	// oldest first.
	ListCompensations(ctx context.Context, sessionID ids.SessionID) ([]CompensationRecord, error)
}
