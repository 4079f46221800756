package compensation

import (
	"context"
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/flowctl/flowctl/internal/log"
	"github.com/flowctl/flowctl/internal/vcs"
	"github.com/flowctl/flowctl/internal/workflow"
)

// Reverter is the subset of vcs.Provider compensation needs to reverse
// recorded effects. A real Execute call is given a vcs.Provider directly
// (it already satisfies this interface); tests substitute a narrower fake.
type Reverter interface {
	RevertCommit(ctx context.Context, hash string) (string, error)
	FileAtRevision(ctx context.Context, path, revision string) (string, error)
	RestoreFile(ctx context.Context, path, revision string) error
	MergePR(ctx context.Context, id string, strategy vcs.MergeStrategy) error
}

var _ Reverter = (vcs.Provider)(nil)

// Execute derives and runs a compensating action per effect, in reverse
// insertion order, per spec.md §4.5. effects must already be ordered
// oldest-first (the order ExecutionEffect rows are recorded); Execute
// walks them newest-first.
//
// Execution never aborts partway: every effect gets an attempted
// compensation and a recorded CompensationRecord, the same best-effort,
// record-each-step-and-keep-going shape as the teacher's
// Supervisor.Shutdown. The returned error is non-nil only if at least one
// action finished Failed, so the caller can still inspect every record
// that did succeed.
func Execute(ctx context.Context, reverter Reverter, session *workflow.Session, effects []Effect) ([]CompensationRecord, error) {
	records := make([]CompensationRecord, 0, len(effects))
	anyFailed := false

	for i := len(effects) - 1; i >= 0; i-- {
		effect := effects[i]
		if !effect.CompensationRequired {
			continue
		}
		record := compensateOne(ctx, reverter, session, effect)
		if record.Status == ResultFailed {
			anyFailed = true
		}
		records = append(records, record)
	}

	if anyFailed {
		return records, fmt.Errorf("compensation: at least one action failed for session %s", session.ID)
	}
	return records, nil
}

func compensateOne(ctx context.Context, reverter Reverter, session *workflow.Session, effect Effect) CompensationRecord {
	switch effect.EffectType {
	case EffectGitCommit:
		return compensateGitCommit(ctx, reverter, session, effect)
	case EffectFileModification:
		return compensateFileModification(ctx, reverter, session, effect)
	case EffectExternalAPICall, EffectDatabaseMutation:
		return compensateExternal(ctx, session, effect)
	default:
		record := newRecord(session.ID, session.CompensationPlan.Kind, ActionManualReviewNeeded, effect.ID)
		record.Status = ResultPending
		record.Reason = "unrecognized effect type " + string(effect.EffectType)
		return record
	}
}

func compensateGitCommit(ctx context.Context, reverter Reverter, session *workflow.Session, effect Effect) CompensationRecord {
	record := newRecord(session.ID, session.CompensationPlan.Kind, ActionGitRevert, effect.ID)
	revertHash, err := reverter.RevertCommit(ctx, effect.CommitHash)
	if err != nil {
		record.Status = ResultFailed
		record.Reason = err.Error()
		log.ErrorErr(log.CatCompensation, "git revert failed", err, "session_id", session.ID.String(), "commit", effect.CommitHash)
		return record
	}
	record.Status = ResultSuccess
	record.Reason = "reverted as " + revertHash
	return record
}

func compensateFileModification(ctx context.Context, reverter Reverter, session *workflow.Session, effect Effect) CompensationRecord {
	record := newRecord(session.ID, session.CompensationPlan.Kind, ActionRestoreFile, effect.ID)

	newContent, _ := reverter.FileAtRevision(ctx, effect.FilePath, "")
	oldContent, err := reverter.FileAtRevision(ctx, effect.FilePath, effect.OldHash)
	if err != nil {
		record.Status = ResultFailed
		record.Reason = err.Error()
		return record
	}
	if err := reverter.RestoreFile(ctx, effect.FilePath, effect.OldHash); err != nil {
		record.Status = ResultFailed
		record.Reason = err.Error()
		log.ErrorErr(log.CatCompensation, "file restore failed", err, "session_id", session.ID.String(), "path", effect.FilePath)
		return record
	}
	record.Status = ResultSuccess
	record.DiffSummary = diffSummary(newContent, oldContent)
	return record
}

func compensateExternal(_ context.Context, session *workflow.Session, effect Effect) CompensationRecord {
	record := newRecord(session.ID, session.CompensationPlan.Kind, ActionManualReviewNeeded, effect.ID)
	if effect.ReverseEndpoint == "" {
		record.Status = ResultPending
		record.Reason = "no reverse endpoint configured: " + effect.Description
		return record
	}
	// A configured reverse endpoint still requires an operator-facing
	// system the core doesn't own (§1 non-goals exclude outbound webhook
	// delivery); record it pending rather than silently dropping the
	// signal.
	record.Status = ResultPending
	record.Reason = "reverse endpoint configured but not dispatched automatically: " + effect.ReverseEndpoint
	return record
}

// diffSummary renders a human-readable pretty-diff between the content a
// file carried before and after compensation restored it.
func diffSummary(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.DiffPrettyText(diffs)
}
