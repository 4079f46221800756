package policy

import (
	"context"
	"regexp"

	"github.com/flowctl/flowctl/internal/workflow"
)

// wipLimitPolicy rejects StartExecution or ClaimTask once the tracker
// reports max_in_progress or more issues already in progress.
type wipLimitPolicy struct{ cfg WipLimitConfig }

func NewWipLimitPolicy(cfg WipLimitConfig) Policy { return wipLimitPolicy{cfg} }

func (p wipLimitPolicy) Name() string        { return "wip_limit" }
func (p wipLimitPolicy) Description() string { return "caps the number of in-progress tracker issues" }
func (p wipLimitPolicy) Priority() int        { return 10 }
func (p wipLimitPolicy) AppliesTo(trig workflow.Trigger) bool {
	return p.cfg.Enabled && triggerTagIn(trig, workflow.TriggerStartExecution, workflow.TriggerClaimTask)
}

func (p wipLimitPolicy) Evaluate(_ context.Context, req Request) PolicyResult {
	if req.Context.Tracker.InProgressCount < p.cfg.MaxInProgress {
		return Allow()
	}
	return FromViolations([]Violation{{
		PolicyName: p.Name(),
		Message:    "in-progress limit reached",
		Severity:   SeverityError,
		Suggestion: "complete or release an in-progress task before claiming another",
	}})
}

// cleanWorktreePolicy rejects StartVerification, CompletePhase, or
// EndSession when the worktree carries staged, unstaged, conflicted, or
// (unless configured to allow) untracked changes from outside the current
// session.
type cleanWorktreePolicy struct{ cfg CleanWorktreeConfig }

func NewCleanWorktreePolicy(cfg CleanWorktreeConfig) Policy { return cleanWorktreePolicy{cfg} }

func (p cleanWorktreePolicy) Name() string { return "clean_worktree" }
func (p cleanWorktreePolicy) Description() string {
	return "requires no unexpected pending changes before claiming or verifying work"
}
func (p cleanWorktreePolicy) Priority() int { return 20 }
func (p cleanWorktreePolicy) AppliesTo(trig workflow.Trigger) bool {
	return p.cfg.Enabled && triggerTagIn(trig,
		workflow.TriggerStartVerification, workflow.TriggerCompletePhase, workflow.TriggerEndSession)
}

func (p cleanWorktreePolicy) Evaluate(_ context.Context, req Request) PolicyResult {
	g := req.Context.Git
	dirty := g.StagedCount > 0 || g.UnstagedCount > 0 || g.ConflictedCount > 0
	if !p.cfg.AllowUntracked {
		dirty = dirty || g.UntrackedCount > 0
	}
	if !dirty {
		return Allow()
	}
	return FromViolations([]Violation{{
		PolicyName: p.Name(),
		Message:    "worktree has pending changes outside the current session",
		Severity:   SeverityError,
		Suggestion: "commit, stash, or discard pending changes first",
	}})
}

// branchNamingPolicy rejects ContextDiscovered when the current branch
// doesn't match a configured naming pattern.
type branchNamingPolicy struct {
	cfg BranchNamingConfig
	re  *regexp.Regexp
}

// NewBranchNamingPolicy compiles cfg.Pattern once at construction, so a
// malformed pattern fails fast instead of on every Evaluate call.
func NewBranchNamingPolicy(cfg BranchNamingConfig) (Policy, error) {
	re, err := regexp.Compile(cfg.Pattern)
	if err != nil {
		return nil, err
	}
	return branchNamingPolicy{cfg: cfg, re: re}, nil
}

func (p branchNamingPolicy) Name() string        { return "branch_naming" }
func (p branchNamingPolicy) Description() string  { return "enforces a branch naming convention" }
func (p branchNamingPolicy) Priority() int        { return 30 }
func (p branchNamingPolicy) AppliesTo(trig workflow.Trigger) bool {
	return p.cfg.Enabled && triggerTagIn(trig, workflow.TriggerContextDiscovered)
}

func (p branchNamingPolicy) Evaluate(_ context.Context, req Request) PolicyResult {
	if p.re.MatchString(req.Context.Git.Branch) {
		return Allow()
	}
	return FromViolations([]Violation{{
		PolicyName: p.Name(),
		Message:    "branch name " + req.Context.Git.Branch + " doesn't match " + p.cfg.Pattern,
		Severity:   SeverityError,
		Suggestion: "rename the branch to match the configured pattern",
	}})
}

// freshnessGatePolicy rejects any guarded transition when the discovered
// context snapshot has fallen stale (including StaleWithRisk), per §4.2.
type freshnessGatePolicy struct{ cfg FreshnessGateConfig }

func NewFreshnessGatePolicy(cfg FreshnessGateConfig) Policy { return freshnessGatePolicy{cfg} }

func (p freshnessGatePolicy) Name() string { return "freshness_gate" }
func (p freshnessGatePolicy) Description() string {
	return "rejects transitions guarded by a stale context snapshot"
}
func (p freshnessGatePolicy) Priority() int { return 1 }
func (p freshnessGatePolicy) AppliesTo(_ workflow.Trigger) bool {
	return p.cfg.Enabled
}

func (p freshnessGatePolicy) Evaluate(_ context.Context, req Request) PolicyResult {
	if req.Context.Freshness.IsAcceptable(p.cfg.MaxStaleAgeMs) {
		return Allow()
	}
	return FromViolations([]Violation{{
		PolicyName: p.Name(),
		Message:    "context snapshot is " + string(req.Context.Freshness.Tag) + ": " + req.Context.Freshness.Reason,
		Severity:   SeverityError,
		Suggestion: "re-discover project context before retrying",
	}})
}
