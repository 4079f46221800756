// Package policy implements the Policy Guard (C6): a composable evaluator
// that gates every workflow transition on repository and tracker
// conditions, returning typed violations rather than errors — a violation
// is a valid outcome of evaluation, not a failure of it (spec.md §4.3).
//
// There is no teacher policy engine to ground this package's shape on
// directly; the Policy contract's `[]Policy` interface slice with no
// runtime type introspection follows the same pattern as the teacher's
// client.AgentProviders map-of-interfaces, and the subprocess-backed
// policies (RequireTests, ArchitectureValidation) reuse the
// os/exec+bytes.Buffer+context-timeout shape of internal/vcs's RealExecutor
// (itself grounded on the teacher's internal/git.RealExecutor).
package policy

import (
	"context"

	"github.com/flowctl/flowctl/internal/scout"
	"github.com/flowctl/flowctl/internal/workflow"
)

// Request bundles everything a policy needs to evaluate one guarded
// transition: the trigger being attempted, the freshly discovered project
// snapshot, and metadata the orchestrator has on hand but that doesn't
// belong on ProjectContext itself (a pending commit message, the files a
// session has touched, code-review/coverage/security measurements). The
// spec's §4.3 table phrases every built-in policy as if this metadata were
// ambient; concretely it has to come from somewhere, so the orchestrator
// populates it before calling Evaluate — recorded as an open-question
// resolution in DESIGN.md.
type Request struct {
	Trigger workflow.Trigger
	Context scout.ProjectContext
	Meta    RequestMeta
}

// RequestMeta carries the policy-evaluation inputs that aren't part of a
// ProjectContext snapshot.
type RequestMeta struct {
	// RequireChangelog / RequireConventionalCommit
	CommitMessage string
	ModifiedFiles []string

	// RequireCodeReview / VersionChangeGate
	ApprovalsCount int

	// CodeCoverageThreshold
	CoveragePercent float64

	// SecurityScan
	SecurityHighSeverityCount int

	// DocumentationCheck
	DocsComplete bool

	// ArchitectureValidation / RequireTests pass/fail, pre-computed by a
	// caller that already ran the gated subprocess once this transition
	// (VersionChangeGate consults these rather than re-running the checks).
	ArchitectureOK *bool
	TestsOK        *bool

	// PerformanceRegression
	PerformanceRegressionPercent float64

	// VersionChangeGate
	VersionBump string // "", "patch", "minor", "major"
}

// Policy is the individual policy contract of §4.3.
type Policy interface {
	Name() string
	Description() string
	// Priority orders evaluation; lower runs first. Default 100.
	Priority() int
	// AppliesTo is a cheap filter consulted before Evaluate.
	AppliesTo(trig workflow.Trigger) bool
	// Evaluate inspects (trigger, context) and returns a PolicyResult. A
	// violation is a valid outcome, not an error — Evaluate itself never
	// returns one.
	Evaluate(ctx context.Context, req Request) PolicyResult
}
