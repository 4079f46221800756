package store

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/flowctl/flowctl/internal/ids"
	"github.com/flowctl/flowctl/internal/workflow"
)

// sessionColumns mirrors the teacher's sessionColumns constant: a single
// column list shared by every SELECT against workflow_sessions.
const sessionColumns = `id, project_id, task_id, operator_id, current_state_tag, current_state_json,
	branch_name, worktree_path, compensation_plan_json, version, created_at, updated_at,
	last_activity_at, completed_at`

// SQLiteStore implements workflow.Store against a sqlite database opened
// with Open. It is the concrete Database Provider (C3).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an already-open, already-migrated *sql.DB.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Close releases the underlying connection pool.
func (s *SQLiteStore) Close() error { return s.db.Close() }

var _ workflow.Store = (*SQLiteStore)(nil)

func scanSessionRow(scanner interface{ Scan(...any) error }) (*sessionRow, error) {
	var r sessionRow
	err := scanner.Scan(
		&r.ID, &r.ProjectID, &r.TaskID, &r.OperatorID, &r.CurrentStateTag, &r.CurrentStateJSON,
		&r.BranchName, &r.WorktreePath, &r.CompensationPlanJSON, &r.Version, &r.CreatedAt, &r.UpdatedAt,
		&r.LastActivityAt, &r.CompletedAt,
	)
	return &r, err
}

// CreateSession inserts a new session row in Initializing state.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *workflow.Session) error {
	row, err := toSessionRow(session)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.ProjectID, row.TaskID, row.OperatorID, row.CurrentStateTag, row.CurrentStateJSON,
		row.BranchName, row.WorktreePath, row.CompensationPlanJSON, row.Version, row.CreatedAt, row.UpdatedAt,
		row.LastActivityAt, row.CompletedAt,
	)
	if err != nil {
		return &workflow.PersistenceError{Message: "insert session", Err: err}
	}
	return nil
}

// GetSession loads a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, id ids.SessionID) (*workflow.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM workflow_sessions WHERE id = ?`, id.String())
	r, err := scanSessionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &workflow.SessionNotFoundError{SessionID: id}
	}
	if err != nil {
		return nil, &workflow.PersistenceError{Message: "get session", Err: err}
	}
	return r.toDomain()
}

// ApplyTransition persists the session's new state, a Transition row, and an
// Event row atomically, guarded by expectedVersion (invariant 4).
func (s *SQLiteStore) ApplyTransition(ctx context.Context, sessionID ids.SessionID, expectedVersion int64, next workflow.State, tr workflow.Transition, ev workflow.Event) (*workflow.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &workflow.PersistenceError{Message: "begin transition tx", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM workflow_sessions WHERE id = ?`, sessionID.String())
	current, err := scanSessionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &workflow.SessionNotFoundError{SessionID: sessionID}
	}
	if err != nil {
		return nil, &workflow.PersistenceError{Message: "get session for transition", Err: err}
	}
	if current.Version != expectedVersion {
		return nil, &workflow.OptimisticConcurrencyConflictError{SessionID: sessionID}
	}

	session, err := current.toDomain()
	if err != nil {
		return nil, err
	}
	session.CurrentState = next
	session.Version++
	session.UpdatedAt = tr.Timestamp
	session.LastActivityAt = tr.Timestamp
	if next.Tag == workflow.StateCompleted {
		completed := tr.Timestamp
		session.CompletedAt = &completed
	}

	updatedRow, err := toSessionRow(session)
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE workflow_sessions SET current_state_tag = ?, current_state_json = ?, version = ?,
			updated_at = ?, last_activity_at = ?, completed_at = ? WHERE id = ? AND version = ?`,
		updatedRow.CurrentStateTag, updatedRow.CurrentStateJSON, updatedRow.Version,
		updatedRow.UpdatedAt, updatedRow.LastActivityAt, updatedRow.CompletedAt,
		sessionID.String(), expectedVersion,
	)
	if err != nil {
		return nil, &workflow.PersistenceError{Message: "update session", Err: err}
	}
	if affected, err := res.RowsAffected(); err != nil || affected == 0 {
		return nil, &workflow.OptimisticConcurrencyConflictError{SessionID: sessionID}
	}

	trRow, err := toTransitionRow(&tr)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO workflow_transitions (id, session_id, from_state_json, to_state_json, trigger_json, guard_result_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
		trRow.ID, trRow.SessionID, trRow.FromStateJSON, trRow.ToStateJSON, trRow.TriggerJSON, trRow.GuardResultJSON, trRow.CreatedAt,
	); err != nil {
		return nil, &workflow.PersistenceError{Message: "insert transition", Err: err}
	}

	evRow, err := toEventRow(&ev)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO workflow_events (id, session_id, event_type, from_state_json, to_state_json, trigger_json, data, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		evRow.ID, evRow.SessionID, evRow.EventType, evRow.FromStateJSON, evRow.ToStateJSON, evRow.TriggerJSON, evRow.Data, evRow.CreatedAt,
	); err != nil {
		return nil, &workflow.PersistenceError{Message: "insert event", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &workflow.PersistenceError{Message: "commit transition tx", Err: err}
	}
	return session, nil
}

// ListTransitions returns Transition rows for a session, newest first.
func (s *SQLiteStore) ListTransitions(ctx context.Context, sessionID ids.SessionID, limit int) ([]workflow.Transition, error) {
	query := `SELECT id, session_id, from_state_json, to_state_json, trigger_json, guard_result_json, created_at
		FROM workflow_transitions WHERE session_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{sessionID.String()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &workflow.PersistenceError{Message: "list transitions", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []workflow.Transition
	for rows.Next() {
		var r transitionRow
		if err := rows.Scan(&r.ID, &r.SessionID, &r.FromStateJSON, &r.ToStateJSON, &r.TriggerJSON, &r.GuardResultJSON, &r.CreatedAt); err != nil {
			return nil, &workflow.PersistenceError{Message: "scan transition row", Err: err}
		}
		tr, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *tr)
	}
	if err := rows.Err(); err != nil {
		return nil, &workflow.PersistenceError{Message: "iterate transitions", Err: err}
	}
	return out, nil
}

// ActiveSessions returns every session whose current_state_tag is not a
// member of the matrix's terminal set.
func (s *SQLiteStore) ActiveSessions(ctx context.Context) ([]*workflow.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM workflow_sessions
		WHERE NOT (current_state_tag = ? OR (current_state_tag = ? AND json_extract(current_state_json, '$.recoverable') = 0))
		ORDER BY created_at ASC`,
		workflow.StateCompleted, workflow.StateFailed,
	)
	if err != nil {
		return nil, &workflow.PersistenceError{Message: "list active sessions", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []*workflow.Session
	for rows.Next() {
		r, err := scanSessionRow(rows)
		if err != nil {
			return nil, &workflow.PersistenceError{Message: "scan session row", Err: err}
		}
		session, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, &workflow.PersistenceError{Message: "iterate active sessions", Err: err}
	}
	// json_extract's 0/1 comparison above is belt-and-suspenders; trust the
	// domain's own IsTerminal as the filter of record.
	filtered := out[:0]
	for _, session := range out {
		if !session.IsTerminal() {
			filtered = append(filtered, session)
		}
	}
	return filtered, nil
}

// ListByProject returns every non-deleted session for a project, newest
// first, supplementing the core Store port for the CLI's list_sessions
// action (§6.1).
func (s *SQLiteStore) ListByProject(ctx context.Context, projectID string) ([]*workflow.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM workflow_sessions WHERE project_id = ? ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, &workflow.PersistenceError{Message: "list sessions by project", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []*workflow.Session
	for rows.Next() {
		r, err := scanSessionRow(rows)
		if err != nil {
			return nil, &workflow.PersistenceError{Message: "scan session row", Err: err}
		}
		session, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, rows.Err()
}

// SetWorktree records the branch and worktree path the orchestrator
// allocated for a session on its first entry into a work state (§4.6),
// supplementing the core Store port the same way ListByProject does.
func (s *SQLiteStore) SetWorktree(ctx context.Context, sessionID ids.SessionID, branchName, worktreePath string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE workflow_sessions SET branch_name = ?, worktree_path = ? WHERE id = ?`,
		branchName, worktreePath, sessionID.String(),
	)
	if err != nil {
		return &workflow.PersistenceError{Message: "set worktree", Err: err}
	}
	return nil
}
