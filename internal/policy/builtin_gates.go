package policy

import (
	"context"

	"github.com/flowctl/flowctl/internal/workflow"
)

// versionChangeGatePolicy rejects a minor or major CompletePhase unless
// recorded approvals meet the minimum and the current branch is one of
// the allowed release branches. It also consults the pre-computed
// architecture/tests verdicts in RequestMeta rather than re-running those
// checks itself.
type versionChangeGatePolicy struct{ cfg VersionChangeGateConfig }

func NewVersionChangeGatePolicy(cfg VersionChangeGateConfig) Policy {
	return versionChangeGatePolicy{cfg}
}

func (p versionChangeGatePolicy) Name() string { return "version_change_gate" }
func (p versionChangeGatePolicy) Description() string {
	return "gates minor/major version bumps on approvals, branch, and upstream checks"
}
func (p versionChangeGatePolicy) Priority() int { return 90 }
func (p versionChangeGatePolicy) AppliesTo(trig workflow.Trigger) bool {
	if !p.cfg.Enabled || !triggerTagIn(trig, workflow.TriggerCompletePhase) {
		return false
	}
	return true
}

func (p versionChangeGatePolicy) Evaluate(_ context.Context, req Request) PolicyResult {
	if req.Meta.VersionBump != "minor" && req.Meta.VersionBump != "major" {
		return Allow()
	}

	var violations []Violation
	if req.Meta.ApprovalsCount < p.cfg.MinApprovals {
		violations = append(violations, Violation{
			PolicyName: p.Name(),
			Message:    "version bump requires more approvals",
			Severity:   SeverityError,
			Suggestion: "obtain the configured minimum approvals before completing the phase",
		})
	}
	if !branchAllowed(req.Context.Git.Branch, p.cfg.AllowedBranches) {
		violations = append(violations, Violation{
			PolicyName: p.Name(),
			Message:    "version bump isn't permitted from branch " + req.Context.Git.Branch,
			Severity:   SeverityError,
			Suggestion: "complete the phase from an allowed release branch",
		})
	}
	if req.Meta.ArchitectureOK != nil && !*req.Meta.ArchitectureOK {
		violations = append(violations, Violation{
			PolicyName: p.Name(),
			Message:    "architecture validation hasn't passed",
			Severity:   SeverityError,
			Suggestion: "resolve architecture validation failures first",
		})
	}
	if req.Meta.TestsOK != nil && !*req.Meta.TestsOK {
		violations = append(violations, Violation{
			PolicyName: p.Name(),
			Message:    "tests haven't passed",
			Severity:   SeverityError,
			Suggestion: "resolve test failures first",
		})
	}
	if len(violations) == 0 {
		return Allow()
	}
	return FromViolations(violations)
}

func branchAllowed(branch string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, b := range allowed {
		if b == branch {
			return true
		}
	}
	return false
}
