package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// allStateTags and allTriggerTags let the property tests enumerate the full
// cross product of (state, trigger) pairs, mirroring the matrix-conformance
// property in spec.md §8.
var allStateTags = []StateTag{
	StateInitializing, StateReady, StatePlanning, StateExecuting, StateVerifying,
	StatePhaseComplete, StateCompleted, StateFailed, StateSuspended, StateTimeout,
	StateCancelled, StateAbandoned,
}

var allTriggerTags = []TriggerTag{
	TriggerContextDiscovered, TriggerStartPlanning, TriggerStartExecution, TriggerClaimTask,
	TriggerCompleteTask, TriggerStartVerification, TriggerVerificationPassed, TriggerVerificationFailed,
	TriggerCompletePhase, TriggerEndSession, TriggerError, TriggerRecover, TriggerSuspend,
	TriggerResume, TriggerTimeoutDetected, TriggerCancel, TriggerMarkAbandoned,
}

// validPairs lists every (from, trigger) pair the matrix in spec.md §4.1
// allows, used to assert Apply never accepts an unlisted pair and never
// rejects a listed one.
func validPairs() map[StateTag]map[TriggerTag]bool {
	m := map[StateTag]map[TriggerTag]bool{}
	add := func(from StateTag, trig TriggerTag) {
		if m[from] == nil {
			m[from] = map[TriggerTag]bool{}
		}
		m[from][trig] = true
	}
	add(StateInitializing, TriggerContextDiscovered)
	add(StateReady, TriggerStartPlanning)
	add(StateReady, TriggerStartExecution)
	add(StatePlanning, TriggerStartExecution)
	add(StateExecuting, TriggerClaimTask)
	add(StateExecuting, TriggerCompleteTask)
	add(StateExecuting, TriggerStartVerification)
	add(StateVerifying, TriggerVerificationPassed)
	add(StateVerifying, TriggerVerificationFailed)
	add(StatePhaseComplete, TriggerStartPlanning)
	add(StatePhaseComplete, TriggerStartExecution)
	add(StatePhaseComplete, TriggerCompletePhase)
	add(StateFailed, TriggerRecover) // only recoverable, checked separately
	add(StateSuspended, TriggerResume)
	add(StateSuspended, TriggerMarkAbandoned)

	// Generic rules: any non-terminal (excluding Failed for Error) gets Error,
	// EndSession (non-Completed), Suspend, TimeoutDetected, Cancel.
	for _, tag := range allStateTags {
		terminal := (tag == StateCompleted)
		if !terminal {
			add(tag, TriggerSuspend)
			add(tag, TriggerTimeoutDetected)
			add(tag, TriggerCancel)
		}
		if tag != StateCompleted {
			add(tag, TriggerEndSession)
		}
		if tag != StateCompleted && tag != StateFailed {
			add(tag, TriggerError)
		}
	}
	return m
}

func TestMatrix_ConformsToSpec(t *testing.T) {
	pairs := validPairs()
	now := time.Now()

	for _, from := range allStateTags {
		for _, trig := range allTriggerTags {
			state := State{Tag: from}
			if from == StateFailed {
				state.Recoverable = true // the only Failed row the matrix allows is Recover
			}
			trigger := Trigger{Tag: trig, ResumeTarget: StateExecuting}

			_, err := Apply(state, trigger, now, now)
			expectValid := pairs[from][trig]

			if trig == TriggerCancel && from == StateCompleted {
				// handled as an idempotent no-op by the engine, not Apply
				continue
			}

			if expectValid {
				require.NoErrorf(t, err, "expected %s -> %s to be valid", from, trig)
			} else {
				require.Errorf(t, err, "expected %s -> %s to be rejected", from, trig)
			}
		}
	}
}

func TestMatrix_FailedUnrecoverableRejectsRecover(t *testing.T) {
	_, err := Apply(State{Tag: StateFailed, Recoverable: false}, Recover(), time.Now(), time.Now())
	require.Error(t, err)
	var invalidErr *InvalidTransitionError
	require.ErrorAs(t, err, &invalidErr)
}

func TestMatrix_CancelOnTerminalIsNoOpInApply(t *testing.T) {
	completed := State{Tag: StateCompleted}
	next, err := Apply(completed, Cancel("n/a", "op"), time.Now(), time.Now())
	require.NoError(t, err)
	require.Equal(t, completed, next)
}

func TestMatrix_SuspendPreservesPhaseAndTaskForResume(t *testing.T) {
	executing := State{Tag: StateExecuting, PhaseID: "phase-1", TaskID: "task-1"}
	suspended, err := Apply(executing, Suspend("operator break"), time.Now(), time.Now())
	require.NoError(t, err)
	require.Equal(t, StateSuspended, suspended.Tag)
	require.Equal(t, "phase-1", suspended.PhaseID)
	require.Equal(t, "task-1", suspended.TaskID)

	resumed, err := Apply(suspended, Resume(StateExecuting), time.Now(), time.Now())
	require.NoError(t, err)
	require.Equal(t, executing, resumed)
}

// TestProperty_ExecutingTaskClaimCompleteRoundTrips exercises the
// Executing self-loop (ClaimTask/CompleteTask) under randomized phase ids,
// grounded in the teacher's rapid-based state-invariant style
// (controlplane/mcp's TestProperty_* tests).
func TestProperty_ExecutingTaskClaimCompleteRoundTrips(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		phaseID := rapid.StringMatching(`phase-[0-9]+`).Draw(t, "phaseID")
		taskID := rapid.StringMatching(`task-[0-9]+`).Draw(t, "taskID")

		base := State{Tag: StateExecuting, PhaseID: phaseID}
		claimed, err := Apply(base, ClaimTask(taskID), time.Now(), time.Now())
		require.NoError(t, err)
		require.Equal(t, taskID, claimed.TaskID)
		require.Equal(t, phaseID, claimed.PhaseID)

		cleared, err := Apply(claimed, CompleteTask(taskID), time.Now(), time.Now())
		require.NoError(t, err)
		require.Empty(t, cleared.TaskID)
		require.Equal(t, phaseID, cleared.PhaseID)
	})
}

func TestMatrix_TimeoutComputesExceededByMs(t *testing.T) {
	deadline := time.Now().Add(-2 * time.Second)
	now := deadline.Add(2500 * time.Millisecond)
	next, err := Apply(State{Tag: StateExecuting}, TimeoutDetected(deadline), now, now)
	require.NoError(t, err)
	require.Equal(t, StateTimeout, next.Tag)
	require.InDelta(t, 2500, next.ExceededByMs, 5)
}
