// Package compensation implements §4.5's compensation engine: given a
// session's compensation_plan and the ExecutionEffect rows recorded since
// its last successful terminal state, it derives and executes a reversing
// action per effect and records the outcome as a CompensationRecord.
//
// New domain code — the teacher has no compensation engine — grounded on
// `controlplane.Supervisor.Shutdown`'s teardown sequencing: a fixed,
// reverse-order sequence of steps where each step's failure is recorded
// rather than aborting the remaining steps, executed best-effort.
package compensation

import (
	"time"

	"github.com/flowctl/flowctl/internal/ids"
)

// EffectType names the kind of side effect recorded during execution
// (spec.md §3.1 ExecutionEffect.effect_type).
type EffectType string

const (
	EffectGitCommit        EffectType = "git_commit"
	EffectFileModification  EffectType = "file_modification"
	EffectExternalAPICall   EffectType = "external_api_call"
	EffectDatabaseMutation  EffectType = "database_mutation"
)

// Effect is an immutable record of one side effect produced while a
// session executed a task.
type Effect struct {
	ID                   ids.EffectID
	SessionID            ids.SessionID
	TaskID               string
	EffectType           EffectType
	Reversible           bool
	CompensationRequired bool
	Timestamp            time.Time

	// EffectGitCommit
	CommitHash string

	// EffectFileModification
	FilePath string
	OldHash  string
	NewHash  string

	// EffectExternalAPICall, EffectDatabaseMutation
	Description   string
	ReverseEndpoint string // if set, named in the compensation record's reason; no reverse call is made and the record stays a pending manual review
}

// NewGitCommitEffect builds a reversible GitCommit effect.
func NewGitCommitEffect(sessionID ids.SessionID, taskID, hash string) Effect {
	return Effect{
		ID: ids.NewEffectID(), SessionID: sessionID, TaskID: taskID,
		EffectType: EffectGitCommit, Reversible: true, CompensationRequired: true,
		Timestamp: time.Now(), CommitHash: hash,
	}
}

// NewFileModificationEffect builds a reversible FileModification effect.
func NewFileModificationEffect(sessionID ids.SessionID, taskID, path, oldHash, newHash string) Effect {
	return Effect{
		ID: ids.NewEffectID(), SessionID: sessionID, TaskID: taskID,
		EffectType: EffectFileModification, Reversible: true, CompensationRequired: true,
		Timestamp: time.Now(), FilePath: path, OldHash: oldHash, NewHash: newHash,
	}
}

// NewExternalAPICallEffect builds a non-reversible (unless reverseEndpoint
// is set) ExternalApiCall effect.
func NewExternalAPICallEffect(sessionID ids.SessionID, taskID, description, reverseEndpoint string) Effect {
	return Effect{
		ID: ids.NewEffectID(), SessionID: sessionID, TaskID: taskID,
		EffectType: EffectExternalAPICall, Reversible: reverseEndpoint != "", CompensationRequired: true,
		Timestamp: time.Now(), Description: description, ReverseEndpoint: reverseEndpoint,
	}
}

// NewDatabaseMutationEffect builds a non-reversible (unless
// reverseEndpoint is set) DatabaseMutation effect.
func NewDatabaseMutationEffect(sessionID ids.SessionID, taskID, description, reverseEndpoint string) Effect {
	return Effect{
		ID: ids.NewEffectID(), SessionID: sessionID, TaskID: taskID,
		EffectType: EffectDatabaseMutation, Reversible: reverseEndpoint != "", CompensationRequired: true,
		Timestamp: time.Now(), Description: description, ReverseEndpoint: reverseEndpoint,
	}
}
