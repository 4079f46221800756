package policy

import (
	"context"
	"regexp"
	"strings"

	"github.com/flowctl/flowctl/internal/workflow"
)

// requireChangelogPolicy rejects CompleteTask unless the session's
// modified files include the configured changelog file.
type requireChangelogPolicy struct{ cfg RequireChangelogConfig }

func NewRequireChangelogPolicy(cfg RequireChangelogConfig) Policy {
	return requireChangelogPolicy{cfg}
}

func (p requireChangelogPolicy) Name() string { return "require_changelog" }
func (p requireChangelogPolicy) Description() string {
	return "requires the changelog file to be touched alongside task completion"
}
func (p requireChangelogPolicy) Priority() int { return 40 }
func (p requireChangelogPolicy) AppliesTo(trig workflow.Trigger) bool {
	return p.cfg.Enabled && triggerTagIn(trig, workflow.TriggerCompleteTask)
}

func (p requireChangelogPolicy) Evaluate(_ context.Context, req Request) PolicyResult {
	for _, f := range req.Meta.ModifiedFiles {
		if f == p.cfg.Filename {
			return Allow()
		}
	}
	return FromViolations([]Violation{{
		PolicyName: p.Name(),
		Message:    p.cfg.Filename + " was not modified",
		Severity:   SeverityError,
		Suggestion: "add an entry to " + p.cfg.Filename + " before completing the task",
	}})
}

// requireConventionalCommitPolicy rejects CompleteTask when the pending
// commit message doesn't match the configured conventional-commit pattern.
type requireConventionalCommitPolicy struct {
	cfg RequireConventionalCommitConfig
	re  *regexp.Regexp
}

func NewRequireConventionalCommitPolicy(cfg RequireConventionalCommitConfig) (Policy, error) {
	re, err := regexp.Compile(cfg.Pattern)
	if err != nil {
		return nil, err
	}
	return requireConventionalCommitPolicy{cfg: cfg, re: re}, nil
}

func (p requireConventionalCommitPolicy) Name() string { return "require_conventional_commit" }
func (p requireConventionalCommitPolicy) Description() string {
	return "requires the pending commit message to follow conventional commits"
}
func (p requireConventionalCommitPolicy) Priority() int { return 40 }
func (p requireConventionalCommitPolicy) AppliesTo(trig workflow.Trigger) bool {
	return p.cfg.Enabled && triggerTagIn(trig, workflow.TriggerCompleteTask)
}

func (p requireConventionalCommitPolicy) Evaluate(_ context.Context, req Request) PolicyResult {
	msg := strings.TrimSpace(req.Meta.CommitMessage)
	if msg != "" && p.re.MatchString(msg) {
		return Allow()
	}
	return FromViolations([]Violation{{
		PolicyName: p.Name(),
		Message:    "commit message doesn't follow conventional commits",
		Severity:   SeverityError,
		Suggestion: "format the commit message as type(scope): description",
	}})
}

// requireCodeReviewPolicy rejects StartVerification or CompletePhase
// unless a minimum number of approvals have been recorded.
type requireCodeReviewPolicy struct{ cfg RequireCodeReviewConfig }

func NewRequireCodeReviewPolicy(cfg RequireCodeReviewConfig) Policy {
	return requireCodeReviewPolicy{cfg}
}

func (p requireCodeReviewPolicy) Name() string { return "require_code_review" }
func (p requireCodeReviewPolicy) Description() string {
	return "requires a minimum number of review approvals before completing a phase"
}
func (p requireCodeReviewPolicy) Priority() int { return 50 }
func (p requireCodeReviewPolicy) AppliesTo(trig workflow.Trigger) bool {
	return p.cfg.Enabled && triggerTagIn(trig, workflow.TriggerStartVerification, workflow.TriggerCompletePhase)
}

func (p requireCodeReviewPolicy) Evaluate(_ context.Context, req Request) PolicyResult {
	if req.Meta.ApprovalsCount >= p.cfg.MinApprovals {
		return Allow()
	}
	return FromViolations([]Violation{{
		PolicyName: p.Name(),
		Message:    "not enough review approvals recorded",
		Severity:   SeverityError,
		Suggestion: "obtain at least the configured number of approvals",
	}})
}
