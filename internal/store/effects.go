package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowctl/flowctl/internal/ids"
	"github.com/flowctl/flowctl/internal/orchestrator/compensation"
	"github.com/flowctl/flowctl/internal/workflow"
)

var _ compensation.Store = (*SQLiteStore)(nil)

// effectPayload is the JSON shape stored in workflow_effects.payload_json —
// the type-specific fields of compensation.Effect that don't belong as
// dedicated columns.
type effectPayload struct {
	CommitHash      string `json:"commit_hash,omitempty"`
	FilePath        string `json:"file_path,omitempty"`
	OldHash         string `json:"old_hash,omitempty"`
	NewHash         string `json:"new_hash,omitempty"`
	Description     string `json:"description,omitempty"`
	ReverseEndpoint string `json:"reverse_endpoint,omitempty"`
	Reversible      bool   `json:"reversible"`
	CompensationRequired bool `json:"compensation_required"`
	TaskID          string `json:"task_id,omitempty"`
}

// RecordEffect inserts an ExecutionEffect row.
func (s *SQLiteStore) RecordEffect(ctx context.Context, e compensation.Effect) error {
	payload, err := json.Marshal(effectPayload{
		CommitHash: e.CommitHash, FilePath: e.FilePath, OldHash: e.OldHash, NewHash: e.NewHash,
		Description: e.Description, ReverseEndpoint: e.ReverseEndpoint,
		Reversible: e.Reversible, CompensationRequired: e.CompensationRequired, TaskID: e.TaskID,
	})
	if err != nil {
		return fmt.Errorf("marshaling effect payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_effects (id, session_id, effect_type, payload_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID.String(), e.SessionID.String(), string(e.EffectType), string(payload), e.Timestamp.UnixMilli(),
	)
	if err != nil {
		return &workflow.PersistenceError{Message: "insert effect", Err: err}
	}
	return nil
}

// EffectsSince returns every recorded effect for sessionID, oldest first.
func (s *SQLiteStore) EffectsSince(ctx context.Context, sessionID ids.SessionID) ([]compensation.Effect, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, effect_type, payload_json, created_at FROM workflow_effects
			WHERE session_id = ? ORDER BY created_at ASC, id ASC`,
		sessionID.String(),
	)
	if err != nil {
		return nil, &workflow.PersistenceError{Message: "list effects", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []compensation.Effect
	for rows.Next() {
		var id, sid, effectType, payloadJSON string
		var createdAt int64
		if err := rows.Scan(&id, &sid, &effectType, &payloadJSON, &createdAt); err != nil {
			return nil, &workflow.PersistenceError{Message: "scan effect row", Err: err}
		}
		var payload effectPayload
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, fmt.Errorf("unmarshaling effect payload: %w", err)
		}
		out = append(out, compensation.Effect{
			ID: ids.EffectID(id), SessionID: ids.SessionID(sid), TaskID: payload.TaskID,
			EffectType: compensation.EffectType(effectType),
			Reversible: payload.Reversible, CompensationRequired: payload.CompensationRequired,
			Timestamp:       millisToTime(createdAt),
			CommitHash:      payload.CommitHash,
			FilePath:        payload.FilePath,
			OldHash:         payload.OldHash,
			NewHash:         payload.NewHash,
			Description:     payload.Description,
			ReverseEndpoint: payload.ReverseEndpoint,
		})
	}
	return out, rows.Err()
}

// compensationActionsPayload is the JSON shape stored in
// workflow_compensations.actions_json: a single-element slice today
// (one CompensationRecord per row), kept as a list for forward
// compatibility with multi-action records.
type compensationActionsPayload struct {
	Action         string `json:"action"`
	TargetEffectID string `json:"target_effect_id"`
	DiffSummary    string `json:"diff_summary,omitempty"`
}

// RecordCompensation inserts a CompensationRecord row. The table's `kind`
// column holds the session's compensation_plan kind (auto_revert /
// manual_review / approve_and_merge); the derived per-effect action
// (git_revert, restore_file, ...) lives in actions_json alongside the
// target effect id, since a future multi-action compensation run may
// record more than one action per plan invocation.
func (s *SQLiteStore) RecordCompensation(ctx context.Context, r compensation.CompensationRecord) error {
	actions, err := json.Marshal([]compensationActionsPayload{{
		Action: string(r.Action), TargetEffectID: r.TargetEffectID.String(), DiffSummary: r.DiffSummary,
	}})
	if err != nil {
		return fmt.Errorf("marshaling compensation actions: %w", err)
	}
	var completedAt *int64
	if r.Status != compensation.ResultPending {
		ms := r.ExecutedAt.UnixMilli()
		completedAt = &ms
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_compensations (id, session_id, kind, status, actions_json, error, created_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.SessionID.String(), string(r.Plan), string(r.Status), string(actions),
		nullableString(r.Reason), r.ExecutedAt.UnixMilli(), completedAt,
	)
	if err != nil {
		return &workflow.PersistenceError{Message: "insert compensation record", Err: err}
	}
	return nil
}

// ListCompensations returns every compensation record for sessionID,
// oldest first.
func (s *SQLiteStore) ListCompensations(ctx context.Context, sessionID ids.SessionID) ([]compensation.CompensationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, kind, status, actions_json, error, created_at FROM workflow_compensations
			WHERE session_id = ? ORDER BY created_at ASC, id ASC`,
		sessionID.String(),
	)
	if err != nil {
		return nil, &workflow.PersistenceError{Message: "list compensations", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []compensation.CompensationRecord
	for rows.Next() {
		var id, sid, kind, status, actionsJSON string
		var reason *string
		var createdAt int64
		if err := rows.Scan(&id, &sid, &kind, &status, &actionsJSON, &reason, &createdAt); err != nil {
			return nil, &workflow.PersistenceError{Message: "scan compensation row", Err: err}
		}
		var actions []compensationActionsPayload
		if err := json.Unmarshal([]byte(actionsJSON), &actions); err != nil {
			return nil, fmt.Errorf("unmarshaling compensation actions: %w", err)
		}
		record := compensation.CompensationRecord{
			ID: ids.CompensationID(id), SessionID: ids.SessionID(sid),
			Plan: workflow.CompensationPlanKind(kind), Status: compensation.ResultStatus(status),
			ExecutedAt: millisToTime(createdAt),
		}
		if reason != nil {
			record.Reason = *reason
		}
		if len(actions) > 0 {
			record.Action = compensation.ActionKind(actions[0].Action)
			record.TargetEffectID = ids.EffectID(actions[0].TargetEffectID)
			record.DiffSummary = actions[0].DiffSummary
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
