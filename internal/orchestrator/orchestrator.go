// Package orchestrator implements the Orchestrator (C8): the sole
// component that drives session transitions in production paths. It
// composes the Workflow Engine, Context Scout, Policy Guard, Event Bus, VCS
// Provider, and Compensation engine behind the guarded-transition critical
// section of spec.md §4.4.
//
// Grounded on the teacher's controlplane.Supervisor/defaultSupervisor: a
// composition root holding a reference to every port and sub-component,
// validating preconditions before doing stateful work inside a lock,
// emitting events through the bus at each step, and never partially
// committing a failed operation — the same shape as
// AllocateResources/SpawnCoordinator's sequencing.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/flowctl/flowctl/internal/eventbus"
	"github.com/flowctl/flowctl/internal/ids"
	"github.com/flowctl/flowctl/internal/log"
	"github.com/flowctl/flowctl/internal/orchestrator/compensation"
	"github.com/flowctl/flowctl/internal/policy"
	"github.com/flowctl/flowctl/internal/scout"
	"github.com/flowctl/flowctl/internal/session"
	"github.com/flowctl/flowctl/internal/vcs"
	"github.com/flowctl/flowctl/internal/workflow"
)

// VCSFactory resolves a vcs.Provider rooted at a project's working
// directory, mirroring scout.VCSFactory: the orchestrator asks for a fresh
// provider per call instead of holding one across sessions belonging to
// different project roots.
type VCSFactory func(projectRoot string) vcs.Provider

// WorktreeStore is the narrow slice of the Database Provider the
// orchestrator needs beyond workflow.Store, supplementing it the same way
// compensation.Store does.
type WorktreeStore interface {
	SetWorktree(ctx context.Context, sessionID ids.SessionID, branchName, worktreePath string) error
}

// Config holds the orchestrator's own knobs — everything not already owned
// by a sub-component's Config.
type Config struct {
	// WorktreeRoot is {repo_root} in the §4.6 path convention. Empty means
	// each call's project_root is used directly.
	WorktreeRoot string
}

// Orchestrator is the C8 composition root.
type Orchestrator struct {
	cfg Config

	engine     *workflow.Engine
	store      workflow.Store
	worktrees  WorktreeStore
	guard      *policy.GuardProvider
	scout      *scout.Scout
	bus        *eventbus.Bus
	compStore  compensation.Store
	vcsFactory VCSFactory

	sessions *session.Manager
}

// New constructs an Orchestrator. Every dependency is required except cfg,
// which defaults to the zero value (each call's project_root doubles as
// {repo_root}). sessions supplies the max_sessions cap check and the
// per-session write lock (§4.7); the orchestrator itself never maintains
// session bookkeeping beyond what it gets from the Session Manager.
func New(
	cfg Config,
	engine *workflow.Engine,
	store workflow.Store,
	worktrees WorktreeStore,
	guard *policy.GuardProvider,
	sct *scout.Scout,
	bus *eventbus.Bus,
	compStore compensation.Store,
	vcsFactory VCSFactory,
	sessions *session.Manager,
) *Orchestrator {
	return &Orchestrator{
		cfg: cfg, engine: engine, store: store, worktrees: worktrees, guard: guard,
		scout: sct, bus: bus, compStore: compStore, vcsFactory: vcsFactory,
		sessions: sessions,
	}
}

func toSummary(result policy.PolicyResult) *workflow.GuardResultSummary {
	summary := &workflow.GuardResultSummary{Allowed: result.Allowed}
	for _, v := range result.Violations {
		summary.Violations = append(summary.Violations, workflow.ViolationSummary{
			PolicyName: v.PolicyName, Message: v.Message, Severity: string(v.Severity), Suggestion: v.Suggestion,
		})
	}
	return summary
}

// StartSession creates a session, discovers its initial context, evaluates
// the guard advisorily (a violation is logged and carried on the
// transition, but never blocks Ready — spec.md §4.4), and transitions
// Initializing → Ready.
func (o *Orchestrator) StartSession(ctx context.Context, projectRoot, projectID, taskID, operatorID string, plan workflow.CompensationPlan) (*workflow.Session, error) {
	sess, err := o.sessions.CreateSession(ctx, projectID, taskID, operatorID, plan)
	if err != nil {
		return nil, err
	}
	o.bus.Publish(eventbus.DomainEvent{Subject: eventbus.SessionStarted, SessionID: sess.ID})

	unlock := o.sessions.Lock(sess.ID)
	defer unlock()

	pctx, err := o.scout.Discover(ctx, projectRoot, projectID)
	if err != nil {
		return nil, &ContextError{Message: "discover initial context", Err: err}
	}
	o.bus.Publish(eventbus.DomainEvent{Subject: eventbus.ContextDiscovered, SessionID: sess.ID})

	trig := workflow.ContextDiscovered("")
	result := o.guard.Evaluate(ctx, policy.Request{Trigger: trig, Context: pctx})
	o.bus.Publish(eventbus.DomainEvent{Subject: eventbus.PolicyEvaluated, SessionID: sess.ID, GuardResult: toSummary(result)})
	if !result.Allowed {
		log.Warn(log.CatOrchestrator, "advisory guard violation on session start", "session_id", sess.ID.String(), "violations", result.Summary())
	}

	tr, err := o.engine.Transition(ctx, sess.ID, trig, toSummary(result))
	if err != nil {
		return nil, err
	}
	o.bus.Publish(eventbus.DomainEvent{Subject: eventbus.StateTransitioned, SessionID: sess.ID, From: &tr.From, To: &tr.To, Trigger: &tr.Trigger})

	return o.store.GetSession(ctx, sess.ID)
}

// Transition runs the guarded-transition critical section of spec.md §4.4:
// acquire the per-session lock, discover fresh context, evaluate the guard,
// and only on allow does the FSM actually move. meta supplies the
// policy-evaluation inputs the orchestrator's caller has on hand that don't
// belong on a ProjectContext snapshot (commit message, approvals, coverage,
// and similar — see internal/policy's RequestMeta).
func (o *Orchestrator) Transition(ctx context.Context, sessionID ids.SessionID, trig workflow.Trigger, meta policy.RequestMeta, projectRoot string) (*workflow.Transition, error) {
	unlock := o.sessions.Lock(sessionID)
	defer unlock()

	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	pctx, err := o.scout.Discover(ctx, projectRoot, session.ProjectID)
	if err != nil {
		return nil, &ContextError{Message: "discover context", Err: err}
	}

	result := o.guard.Evaluate(ctx, policy.Request{Trigger: trig, Context: pctx, Meta: meta})
	o.bus.Publish(eventbus.DomainEvent{Subject: eventbus.PolicyEvaluated, SessionID: sessionID, GuardResult: toSummary(result)})
	if !result.Allowed {
		return nil, &PolicyViolationError{Result: result}
	}

	tr, err := o.engine.Transition(ctx, sessionID, trig, toSummary(result))
	if err != nil {
		return nil, err
	}
	o.bus.Publish(eventbus.DomainEvent{Subject: eventbus.StateTransitioned, SessionID: sessionID, From: &tr.From, To: &tr.To, Trigger: &tr.Trigger})

	if err := o.applySideEffects(ctx, session, tr, projectRoot); err != nil {
		o.compensate(ctx, session, projectRoot, err.Error())
		return nil, err
	}

	// Entering Failed is itself the compensation trigger (§4.5, §8 scenario
	// 5): an AutoRevert-plan session reverses its recorded effects the
	// moment a session fails, independent of whether this particular
	// transition's own side effects succeeded.
	if tr.To.Tag == workflow.StateFailed && session.CompensationPlan.Kind == workflow.AutoRevert {
		o.compensate(ctx, session, projectRoot, trig.Message)
	}

	return tr, nil
}

// applySideEffects runs the VCS operations a transition implies: worktree
// allocation on first entry into a work state, and worktree/branch teardown
// on terminal entry (§4.6). Both are attempted through the session's VCS
// provider; a failure here is what triggers compensation back in
// Transition.
func (o *Orchestrator) applySideEffects(ctx context.Context, session *workflow.Session, tr *workflow.Transition, projectRoot string) error {
	if o.vcsFactory == nil {
		return nil
	}
	provider := o.vcsFactory(projectRoot)

	isFirstWorkEntry := session.WorktreePath == "" &&
		(tr.To.Tag == workflow.StatePlanning || tr.To.Tag == workflow.StateExecuting)
	if isFirstWorkEntry {
		branch := fmt.Sprintf("feature/%s/%s", session.TaskID, session.ID)
		root := o.cfg.WorktreeRoot
		if root == "" {
			root = projectRoot
		}
		path := fmt.Sprintf("%s/.worktrees/%s", root, session.ID)

		if err := provider.CreateBranch(ctx, branch, ""); err != nil {
			return fmt.Errorf("create branch %s: %w", branch, err)
		}
		if err := provider.CreateWorktree(ctx, path, branch); err != nil {
			return fmt.Errorf("create worktree %s: %w", path, err)
		}
		if err := o.worktrees.SetWorktree(ctx, session.ID, branch, path); err != nil {
			return err
		}
		session.BranchName, session.WorktreePath = branch, path
	}

	if tr.To.IsTerminal() && session.WorktreePath != "" {
		if err := provider.RemoveWorktree(ctx, session.WorktreePath); err != nil {
			log.ErrorErr(log.CatOrchestrator, "worktree teardown failed", err, "session_id", session.ID.String(), "path", session.WorktreePath)
		}
		if session.BranchName != "" {
			if err := provider.DeleteBranch(ctx, session.BranchName); err != nil {
				log.ErrorErr(log.CatOrchestrator, "branch deletion failed", err, "session_id", session.ID.String(), "branch", session.BranchName)
			}
		}
	}

	return nil
}

// compensate runs the compensation engine for session and records the
// outcome, per spec.md §4.5. It is invoked whenever a side-effect step
// fails mid-transition; failures inside compensation itself are logged,
// never re-raised beyond the CompensationFailed event.
func (o *Orchestrator) compensate(ctx context.Context, session *workflow.Session, projectRoot, reason string) {
	o.bus.Publish(eventbus.DomainEvent{Subject: eventbus.CompensationTriggered, SessionID: session.ID, Reason: reason})

	effects, err := o.compStore.EffectsSince(ctx, session.ID)
	if err != nil {
		log.ErrorErr(log.CatCompensation, "loading effects for compensation failed", err, "session_id", session.ID.String())
		o.bus.Publish(eventbus.DomainEvent{Subject: eventbus.CompensationFailed, SessionID: session.ID, Reason: err.Error()})
		return
	}

	provider := o.vcsFactory(projectRoot)
	records, execErr := compensation.Execute(ctx, provider, session, effects)
	for _, record := range records {
		if err := o.compStore.RecordCompensation(ctx, record); err != nil {
			log.ErrorErr(log.CatCompensation, "recording compensation outcome failed", err, "session_id", session.ID.String())
		}
	}

	if execErr != nil {
		o.bus.Publish(eventbus.DomainEvent{Subject: eventbus.CompensationFailed, SessionID: session.ID, Reason: execErr.Error()})
		if _, err := o.engine.Transition(ctx, session.ID, workflow.Error("compensation exhausted: "+reason), nil); err != nil {
			log.ErrorErr(log.CatOrchestrator, "failing session after exhausted compensation", err, "session_id", session.ID.String())
		}
		return
	}
	o.bus.Publish(eventbus.DomainEvent{Subject: eventbus.CompensationSucceeded, SessionID: session.ID})
}

// EndSession transitions a session to completion, emits SessionCompleted,
// and tears down its worktree.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID ids.SessionID, projectRoot string) (*workflow.Session, error) {
	unlock := o.sessions.Lock(sessionID)
	defer unlock()

	tr, err := o.engine.Transition(ctx, sessionID, workflow.EndSession(), nil)
	if err != nil {
		return nil, err
	}
	o.bus.Publish(eventbus.DomainEvent{Subject: eventbus.StateTransitioned, SessionID: sessionID, From: &tr.From, To: &tr.To, Trigger: &tr.Trigger})
	o.bus.Publish(eventbus.DomainEvent{Subject: eventbus.SessionCompleted, SessionID: sessionID})

	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if o.vcsFactory != nil && session.WorktreePath != "" {
		provider := o.vcsFactory(projectRoot)
		if err := provider.RemoveWorktree(ctx, session.WorktreePath); err != nil {
			log.ErrorErr(log.CatOrchestrator, "worktree teardown on end_session failed", err, "session_id", sessionID.String())
		}
		if session.BranchName != "" {
			if err := provider.DeleteBranch(ctx, session.BranchName); err != nil {
				log.ErrorErr(log.CatOrchestrator, "branch deletion on end_session failed", err, "session_id", sessionID.String(), "branch", session.BranchName)
			}
		}
	}
	return session, nil
}

// Status returns a session's current state, its freshly discovered
// context, and the registered policy set.
func (o *Orchestrator) Status(ctx context.Context, sessionID ids.SessionID, projectRoot string) (workflow.State, scout.ProjectContext, []policy.PolicyInfo, error) {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return workflow.State{}, scout.ProjectContext{}, nil, err
	}
	pctx, err := o.scout.Discover(ctx, projectRoot, session.ProjectID)
	if err != nil {
		return workflow.State{}, scout.ProjectContext{}, nil, &ContextError{Message: "discover context", Err: err}
	}
	return session.CurrentState, pctx, o.guard.ListPolicies(), nil
}

// History returns a session's transition log, newest first.
func (o *Orchestrator) History(ctx context.Context, sessionID ids.SessionID, limit int) ([]workflow.Transition, error) {
	return o.engine.History(ctx, sessionID, limit)
}

// DiscoverContext runs a context discovery independent of any session, for
// the discover_context CLI action.
func (o *Orchestrator) DiscoverContext(ctx context.Context, projectRoot, projectID string) (scout.ProjectContext, error) {
	return o.scout.Discover(ctx, projectRoot, projectID)
}

// CheckPolicies dry-runs the full registered policy set against a
// hypothetical (trigger, context) pair, writing nothing (§8's
// dry_run never writes to any persistence surface).
func (o *Orchestrator) CheckPolicies(ctx context.Context, projectRoot, projectID string, trig workflow.Trigger, meta policy.RequestMeta) (policy.PolicyResult, error) {
	pctx, err := o.scout.Discover(ctx, projectRoot, projectID)
	if err != nil {
		return policy.PolicyResult{}, &ContextError{Message: "discover context", Err: err}
	}
	return o.guard.Evaluate(ctx, policy.Request{Trigger: trig, Context: pctx, Meta: meta}), nil
}

// CheckPoliciesDryRun evaluates a single named policy against req without
// requiring any session to exist, the policy_name-filtered form of
// check_policies (§6.1).
func (o *Orchestrator) CheckPoliciesDryRun(ctx context.Context, name string, req policy.Request) (policy.PolicyResult, error) {
	return o.guard.DryRun(ctx, name, req)
}

// ActiveSessions returns every non-terminal session.
func (o *Orchestrator) ActiveSessions(ctx context.Context) ([]*workflow.Session, error) {
	return o.engine.ActiveSessions(ctx)
}

// ListPolicies returns every registered policy's descriptor.
func (o *Orchestrator) ListPolicies() []policy.PolicyInfo {
	return o.guard.ListPolicies()
}
