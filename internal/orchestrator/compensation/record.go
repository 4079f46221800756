package compensation

import (
	"time"

	"github.com/flowctl/flowctl/internal/ids"
	"github.com/flowctl/flowctl/internal/workflow"
)

// ActionKind names the derived compensating action for one Effect, per
// spec.md §4.5's effect_type → action mapping.
type ActionKind string

const (
	ActionGitRevert         ActionKind = "git_revert"
	ActionRestoreFile       ActionKind = "restore_file"
	ActionPRMerge           ActionKind = "pr_merge"
	ActionManualReviewNeeded ActionKind = "manual_review_needed"
)

// ResultStatus is a CompensationRecord's outcome.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultPending ResultStatus = "pending"
	ResultFailed  ResultStatus = "failed"
)

// CompensationRecord is an immutable record of one executed compensating
// action (spec.md §3.1 CompensationRecord).
type CompensationRecord struct {
	ID             ids.CompensationID
	SessionID      ids.SessionID
	Plan           workflow.CompensationPlanKind
	Action         ActionKind
	TargetEffectID ids.EffectID
	Status         ResultStatus
	Reason         string
	// DiffSummary is populated for ActionRestoreFile via sergi/go-diff,
	// describing the reverted content change.
	DiffSummary string
	ExecutedAt  time.Time
}

func newRecord(sessionID ids.SessionID, plan workflow.CompensationPlanKind, action ActionKind, effectID ids.EffectID) CompensationRecord {
	return CompensationRecord{
		ID: ids.NewCompensationID(), SessionID: sessionID, Plan: plan,
		Action: action, TargetEffectID: effectID, ExecutedAt: time.Now(),
	}
}
