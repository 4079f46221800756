package workflow

import (
	"time"

	"github.com/flowctl/flowctl/internal/ids"
)

// CompensationPlanKind names one of the three compensation strategies a
// session is created with (§4.5).
type CompensationPlanKind string

const (
	AutoRevert    CompensationPlanKind = "auto_revert"
	ManualReview  CompensationPlanKind = "manual_review"
	ApproveAndMerge CompensationPlanKind = "approve_and_merge"
)

// CompensationPlan is the tagged compensation strategy attached to a
// session at creation time and stored serialized on the session row.
type CompensationPlan struct {
	Kind CompensationPlanKind `json:"kind"`

	// AutoRevert
	TargetBranch string `json:"target_branch,omitempty"`

	// ManualReview
	Reason string `json:"reason,omitempty"`

	// ApproveAndMerge
	PRURL            string `json:"pr_url,omitempty"`
	AutoMergeEnabled bool   `json:"auto_merge_enabled,omitempty"`
}

// NewAutoRevertPlan builds an AutoRevert(target_branch) compensation plan.
func NewAutoRevertPlan(targetBranch string) CompensationPlan {
	return CompensationPlan{Kind: AutoRevert, TargetBranch: targetBranch}
}

// NewManualReviewPlan builds a ManualReview(reason) compensation plan.
func NewManualReviewPlan(reason string) CompensationPlan {
	return CompensationPlan{Kind: ManualReview, Reason: reason}
}

// NewApproveAndMergePlan builds an ApproveAndMerge(pr_url, auto_merge) plan.
func NewApproveAndMergePlan(prURL string, autoMerge bool) CompensationPlan {
	return CompensationPlan{Kind: ApproveAndMerge, PRURL: prURL, AutoMergeEnabled: autoMerge}
}

// Session is the central owned entity of the core (§3.1 WorkflowSession).
type Session struct {
	ID         ids.SessionID
	ProjectID  string
	TaskID     string
	OperatorID string

	CurrentState State

	BranchName   string
	WorktreePath string

	CompensationPlan CompensationPlan

	// Version is the optimistic-concurrency counter (invariant 4): it
	// strictly increases on every successful state update.
	Version int64

	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastActivityAt time.Time
	CompletedAt    *time.Time
}

// IsTerminal reports whether the session's current state is terminal.
func (s *Session) IsTerminal() bool { return s.CurrentState.IsTerminal() }

// Transition is an immutable record of one applied trigger (§3.1).
type Transition struct {
	ID          ids.TransitionID
	SessionID   ids.SessionID
	From        State
	To          State
	Trigger     Trigger
	GuardResult *GuardResultSummary
	Timestamp   time.Time
}

// GuardResultSummary is the opaque, serializable summary of a policy
// evaluation attached to a Transition row. It is defined here rather than
// imported from internal/policy so that internal/workflow never depends on
// internal/policy — the orchestrator translates a policy.PolicyResult into
// this shape before calling Engine.Transition.
type GuardResultSummary struct {
	Allowed    bool                `json:"allowed"`
	Violations []ViolationSummary `json:"violations,omitempty"`
}

// ViolationSummary mirrors policy.Violation without the import.
type ViolationSummary struct {
	PolicyName string `json:"policy_name"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
	Suggestion string `json:"suggestion,omitempty"`
}

// EventType enumerates the kinds of rows written to workflow_events (§6.3).
type EventType string

const (
	EventStateTransitioned EventType = "state_transition"
	EventGuardEvaluated    EventType = "guard_evaluation"
	EventCompensation      EventType = "compensation"
	EventError             EventType = "error"
)

// Event is an immutable event-log row (§3.1 WorkflowEvent).
type Event struct {
	ID        ids.EventID
	SessionID ids.SessionID
	EventType EventType
	FromState *State
	ToState   *State
	Trigger   *Trigger
	Data      []byte // JSON payload, shape depends on EventType
	Timestamp time.Time
}
