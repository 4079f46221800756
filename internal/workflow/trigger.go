package workflow

import "time"

// TriggerTag names one variant of TransitionTrigger.
type TriggerTag string

const (
	TriggerContextDiscovered   TriggerTag = "context_discovered"
	TriggerStartPlanning       TriggerTag = "start_planning"
	TriggerStartExecution      TriggerTag = "start_execution"
	TriggerClaimTask           TriggerTag = "claim_task"
	TriggerCompleteTask        TriggerTag = "complete_task"
	TriggerStartVerification   TriggerTag = "start_verification"
	TriggerVerificationPassed  TriggerTag = "verification_passed"
	TriggerVerificationFailed  TriggerTag = "verification_failed"
	TriggerCompletePhase       TriggerTag = "complete_phase"
	TriggerEndSession          TriggerTag = "end_session"
	TriggerError               TriggerTag = "error"
	TriggerRecover             TriggerTag = "recover"
	TriggerSuspend             TriggerTag = "suspend"
	TriggerResume              TriggerTag = "resume"
	TriggerTimeoutDetected     TriggerTag = "timeout_detected"
	TriggerCancel              TriggerTag = "cancel"
	TriggerMarkAbandoned       TriggerTag = "mark_abandoned"
)

// Trigger is one tagged variant of TransitionTrigger, carrying only the
// payload fields relevant to its Tag.
type Trigger struct {
	Tag TriggerTag `json:"tag"`

	// ContextDiscovered
	SnapshotID string `json:"snapshot_id,omitempty"`

	// StartPlanning, StartExecution
	PhaseID string `json:"phase_id,omitempty"`

	// ClaimTask, CompleteTask
	TaskID string `json:"task_id,omitempty"`

	// VerificationFailed, Suspend, Cancel
	Reason string `json:"reason,omitempty"`

	// Error
	Message string `json:"message,omitempty"`

	// Cancel
	By string `json:"by,omitempty"`

	// Resume — which work state to resume into ("planning" or "executing"),
	// since the matrix allows Suspended -> Resume -> either.
	ResumeTarget StateTag `json:"resume_target,omitempty"`

	// TimeoutDetected
	Deadline time.Time `json:"deadline,omitempty"`

	// MarkAbandoned
	DaysInactive int `json:"days_inactive,omitempty"`
}

// ContextDiscovered builds the ContextDiscovered(snapshot_id) trigger.
func ContextDiscovered(snapshotID string) Trigger {
	return Trigger{Tag: TriggerContextDiscovered, SnapshotID: snapshotID}
}

// StartPlanning builds the StartPlanning(phase_id) trigger.
func StartPlanning(phaseID string) Trigger {
	return Trigger{Tag: TriggerStartPlanning, PhaseID: phaseID}
}

// StartExecution builds the StartExecution(phase_id) trigger.
func StartExecution(phaseID string) Trigger {
	return Trigger{Tag: TriggerStartExecution, PhaseID: phaseID}
}

// ClaimTask builds the ClaimTask(task_id) trigger.
func ClaimTask(taskID string) Trigger { return Trigger{Tag: TriggerClaimTask, TaskID: taskID} }

// CompleteTask builds the CompleteTask(task_id) trigger.
func CompleteTask(taskID string) Trigger {
	return Trigger{Tag: TriggerCompleteTask, TaskID: taskID}
}

// StartVerification builds the StartVerification trigger.
func StartVerification() Trigger { return Trigger{Tag: TriggerStartVerification} }

// VerificationPassed builds the VerificationPassed trigger.
func VerificationPassed() Trigger { return Trigger{Tag: TriggerVerificationPassed} }

// VerificationFailed builds the VerificationFailed(reason) trigger.
func VerificationFailed(reason string) Trigger {
	return Trigger{Tag: TriggerVerificationFailed, Reason: reason}
}

// CompletePhase builds the CompletePhase trigger.
func CompletePhase() Trigger { return Trigger{Tag: TriggerCompletePhase} }

// EndSession builds the EndSession trigger.
func EndSession() Trigger { return Trigger{Tag: TriggerEndSession} }

// Error builds the Error(message) trigger.
func Error(message string) Trigger { return Trigger{Tag: TriggerError, Message: message} }

// Recover builds the Recover trigger.
func Recover() Trigger { return Trigger{Tag: TriggerRecover} }

// Suspend builds the Suspend(reason) trigger.
func Suspend(reason string) Trigger { return Trigger{Tag: TriggerSuspend, Reason: reason} }

// Resume builds the Resume trigger, targeting Planning or Executing.
func Resume(target StateTag) Trigger { return Trigger{Tag: TriggerResume, ResumeTarget: target} }

// TimeoutDetected builds the TimeoutDetected(deadline) trigger.
func TimeoutDetected(deadline time.Time) Trigger {
	return Trigger{Tag: TriggerTimeoutDetected, Deadline: deadline}
}

// Cancel builds the Cancel(reason, by) trigger.
func Cancel(reason, by string) Trigger {
	return Trigger{Tag: TriggerCancel, Reason: reason, By: by}
}

// MarkAbandoned builds the MarkAbandoned(days_inactive) trigger.
func MarkAbandoned(days int) Trigger {
	return Trigger{Tag: TriggerMarkAbandoned, DaysInactive: days}
}
