package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowctl/flowctl/internal/ids"
	"github.com/flowctl/flowctl/internal/workflow"
)

// sessionRow represents the database row for the workflow_sessions table.
// Nullable columns use pointers, mirroring the teacher's SessionModel.
type sessionRow struct {
	ID                   string
	ProjectID            string
	TaskID               string
	OperatorID           string
	CurrentStateTag      string
	CurrentStateJSON     string
	BranchName           *string
	WorktreePath         *string
	CompensationPlanJSON string
	Version              int64
	CreatedAt            int64
	UpdatedAt            int64
	LastActivityAt       int64
	CompletedAt          *int64
}

func toSessionRow(s *workflow.Session) (*sessionRow, error) {
	stateJSON, err := json.Marshal(s.CurrentState)
	if err != nil {
		return nil, fmt.Errorf("marshaling current state: %w", err)
	}
	planJSON, err := json.Marshal(s.CompensationPlan)
	if err != nil {
		return nil, fmt.Errorf("marshaling compensation plan: %w", err)
	}
	row := &sessionRow{
		ID:                   s.ID.String(),
		ProjectID:            s.ProjectID,
		TaskID:               s.TaskID,
		OperatorID:           s.OperatorID,
		CurrentStateTag:      string(s.CurrentState.Tag),
		CurrentStateJSON:     string(stateJSON),
		CompensationPlanJSON: string(planJSON),
		Version:              s.Version,
		CreatedAt:            s.CreatedAt.UnixMilli(),
		UpdatedAt:            s.UpdatedAt.UnixMilli(),
		LastActivityAt:       s.LastActivityAt.UnixMilli(),
	}
	if s.BranchName != "" {
		row.BranchName = &s.BranchName
	}
	if s.WorktreePath != "" {
		row.WorktreePath = &s.WorktreePath
	}
	if s.CompletedAt != nil {
		ms := s.CompletedAt.UnixMilli()
		row.CompletedAt = &ms
	}
	return row, nil
}

func (r *sessionRow) toDomain() (*workflow.Session, error) {
	var state workflow.State
	if err := json.Unmarshal([]byte(r.CurrentStateJSON), &state); err != nil {
		return nil, fmt.Errorf("unmarshaling current state: %w", err)
	}
	var plan workflow.CompensationPlan
	if err := json.Unmarshal([]byte(r.CompensationPlanJSON), &plan); err != nil {
		return nil, fmt.Errorf("unmarshaling compensation plan: %w", err)
	}
	s := &workflow.Session{
		ID:               ids.SessionID(r.ID),
		ProjectID:        r.ProjectID,
		TaskID:           r.TaskID,
		OperatorID:       r.OperatorID,
		CurrentState:     state,
		CompensationPlan: plan,
		Version:          r.Version,
		CreatedAt:        millisToTime(r.CreatedAt),
		UpdatedAt:        millisToTime(r.UpdatedAt),
		LastActivityAt:   millisToTime(r.LastActivityAt),
	}
	if r.BranchName != nil {
		s.BranchName = *r.BranchName
	}
	if r.WorktreePath != nil {
		s.WorktreePath = *r.WorktreePath
	}
	if r.CompletedAt != nil {
		t := millisToTime(*r.CompletedAt)
		s.CompletedAt = &t
	}
	return s, nil
}

// transitionRow represents a workflow_transitions row.
type transitionRow struct {
	ID              string
	SessionID       string
	FromStateJSON   string
	ToStateJSON     string
	TriggerJSON     string
	GuardResultJSON *string
	CreatedAt       int64
}

func toTransitionRow(tr *workflow.Transition) (*transitionRow, error) {
	fromJSON, err := json.Marshal(tr.From)
	if err != nil {
		return nil, fmt.Errorf("marshaling from state: %w", err)
	}
	toJSON, err := json.Marshal(tr.To)
	if err != nil {
		return nil, fmt.Errorf("marshaling to state: %w", err)
	}
	trigJSON, err := json.Marshal(tr.Trigger)
	if err != nil {
		return nil, fmt.Errorf("marshaling trigger: %w", err)
	}
	row := &transitionRow{
		ID:            tr.ID.String(),
		SessionID:     tr.SessionID.String(),
		FromStateJSON: string(fromJSON),
		ToStateJSON:   string(toJSON),
		TriggerJSON:   string(trigJSON),
		CreatedAt:     tr.Timestamp.UnixMilli(),
	}
	if tr.GuardResult != nil {
		grJSON, err := json.Marshal(tr.GuardResult)
		if err != nil {
			return nil, fmt.Errorf("marshaling guard result: %w", err)
		}
		s := string(grJSON)
		row.GuardResultJSON = &s
	}
	return row, nil
}

func (r *transitionRow) toDomain() (*workflow.Transition, error) {
	var from, to workflow.State
	var trig workflow.Trigger
	if err := json.Unmarshal([]byte(r.FromStateJSON), &from); err != nil {
		return nil, fmt.Errorf("unmarshaling from state: %w", err)
	}
	if err := json.Unmarshal([]byte(r.ToStateJSON), &to); err != nil {
		return nil, fmt.Errorf("unmarshaling to state: %w", err)
	}
	if err := json.Unmarshal([]byte(r.TriggerJSON), &trig); err != nil {
		return nil, fmt.Errorf("unmarshaling trigger: %w", err)
	}
	tr := &workflow.Transition{
		ID:        ids.TransitionID(r.ID),
		SessionID: ids.SessionID(r.SessionID),
		From:      from,
		To:        to,
		Trigger:   trig,
		Timestamp: millisToTime(r.CreatedAt),
	}
	if r.GuardResultJSON != nil {
		var gr workflow.GuardResultSummary
		if err := json.Unmarshal([]byte(*r.GuardResultJSON), &gr); err != nil {
			return nil, fmt.Errorf("unmarshaling guard result: %w", err)
		}
		tr.GuardResult = &gr
	}
	return tr, nil
}

// eventRow represents a workflow_events row.
type eventRow struct {
	ID            string
	SessionID     string
	EventType     string
	FromStateJSON *string
	ToStateJSON   *string
	TriggerJSON   *string
	Data          []byte
	CreatedAt     int64
}

func toEventRow(ev *workflow.Event) (*eventRow, error) {
	row := &eventRow{
		ID:        ev.ID.String(),
		SessionID: ev.SessionID.String(),
		EventType: string(ev.EventType),
		Data:      ev.Data,
		CreatedAt: ev.Timestamp.UnixMilli(),
	}
	if ev.FromState != nil {
		b, err := json.Marshal(ev.FromState)
		if err != nil {
			return nil, fmt.Errorf("marshaling event from state: %w", err)
		}
		s := string(b)
		row.FromStateJSON = &s
	}
	if ev.ToState != nil {
		b, err := json.Marshal(ev.ToState)
		if err != nil {
			return nil, fmt.Errorf("marshaling event to state: %w", err)
		}
		s := string(b)
		row.ToStateJSON = &s
	}
	if ev.Trigger != nil {
		b, err := json.Marshal(ev.Trigger)
		if err != nil {
			return nil, fmt.Errorf("marshaling event trigger: %w", err)
		}
		s := string(b)
		row.TriggerJSON = &s
	}
	return row, nil
}

func millisToTime(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
