package workflow

import "time"

// Apply computes the next State for (current, trig) per the transition
// matrix in spec.md §4.1, or returns *InvalidTransitionError if the pair has
// no matrix row. now is used to stamp Suspended.suspended_at and compute
// Timeout.exceeded_by_ms; lastActivityAt is the session's last_activity_at,
// needed to stamp Abandoned.last_activity (MarkAbandoned's own payload only
// carries days_inactive, per spec.md).
func Apply(current State, trig Trigger, now time.Time, lastActivityAt time.Time) (State, error) {
	invalid := func() (State, error) {
		return State{}, &InvalidTransitionError{From: current.Tag, Trigger: trig.Tag}
	}

	switch trig.Tag {
	case TriggerContextDiscovered:
		if current.Tag != StateInitializing {
			return invalid()
		}
		return State{Tag: StateReady, SnapshotID: trig.SnapshotID}, nil

	case TriggerStartPlanning:
		switch current.Tag {
		case StateReady, StatePhaseComplete:
			return State{Tag: StatePlanning, PhaseID: trig.PhaseID}, nil
		default:
			return invalid()
		}

	case TriggerStartExecution:
		switch current.Tag {
		case StateReady, StatePlanning, StatePhaseComplete:
			return State{Tag: StateExecuting, PhaseID: trig.PhaseID}, nil
		default:
			return invalid()
		}

	case TriggerClaimTask:
		if current.Tag != StateExecuting {
			return invalid()
		}
		return State{Tag: StateExecuting, PhaseID: current.PhaseID, TaskID: trig.TaskID}, nil

	case TriggerCompleteTask:
		if current.Tag != StateExecuting {
			return invalid()
		}
		return State{Tag: StateExecuting, PhaseID: current.PhaseID}, nil

	case TriggerStartVerification:
		if current.Tag != StateExecuting {
			return invalid()
		}
		return State{Tag: StateVerifying, PhaseID: current.PhaseID}, nil

	case TriggerVerificationPassed:
		if current.Tag != StateVerifying {
			return invalid()
		}
		return State{Tag: StatePhaseComplete, PhaseID: current.PhaseID}, nil

	case TriggerVerificationFailed:
		if current.Tag != StateVerifying {
			return invalid()
		}
		return State{Tag: StateExecuting, PhaseID: current.PhaseID}, nil

	case TriggerCompletePhase:
		if current.Tag != StatePhaseComplete {
			return invalid()
		}
		return State{Tag: StateCompleted}, nil

	case TriggerRecover:
		if current.Tag != StateFailed || !current.Recoverable {
			return invalid()
		}
		return State{Tag: StateReady, SnapshotID: ""}, nil

	case TriggerError:
		if current.IsTerminal() || current.Tag == StateFailed {
			return invalid()
		}
		return State{Tag: StateFailed, Error: trig.Message, Recoverable: true}, nil

	case TriggerEndSession:
		if current.Tag == StateCompleted {
			return invalid()
		}
		return State{Tag: StateCompleted}, nil

	case TriggerSuspend:
		if current.IsTerminal() {
			return invalid()
		}
		return State{
			Tag:         StateSuspended,
			PhaseID:     current.PhaseID,
			TaskID:      current.TaskID,
			Reason:      trig.Reason,
			SuspendedAt: now,
		}, nil

	case TriggerResume:
		if current.Tag != StateSuspended {
			return invalid()
		}
		switch trig.ResumeTarget {
		case StatePlanning:
			return State{Tag: StatePlanning, PhaseID: current.PhaseID}, nil
		case StateExecuting:
			return State{Tag: StateExecuting, PhaseID: current.PhaseID, TaskID: current.TaskID}, nil
		default:
			return invalid()
		}

	case TriggerTimeoutDetected:
		if current.IsTerminal() {
			return invalid()
		}
		exceeded := now.Sub(trig.Deadline).Milliseconds()
		if exceeded < 0 {
			exceeded = 0
		}
		return State{Tag: StateTimeout, Deadline: trig.Deadline, ExceededByMs: exceeded}, nil

	case TriggerCancel:
		if current.IsTerminal() {
			// Idempotent termination: handled by the engine before reaching
			// here, but guard against direct callers too.
			return current, nil
		}
		return State{Tag: StateCancelled, Reason: trig.Reason, CancelledBy: trig.By}, nil

	case TriggerMarkAbandoned:
		if current.Tag != StateSuspended {
			return invalid()
		}
		return State{Tag: StateAbandoned, LastActivity: lastActivityAt, DaysInactive: trig.DaysInactive}, nil

	default:
		return invalid()
	}
}
