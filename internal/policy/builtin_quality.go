package policy

import (
	"context"
	"fmt"

	"github.com/flowctl/flowctl/internal/workflow"
)

// codeCoverageThresholdPolicy rejects StartVerification when measured
// coverage falls under min_percent.
type codeCoverageThresholdPolicy struct{ cfg CodeCoverageThresholdConfig }

func NewCodeCoverageThresholdPolicy(cfg CodeCoverageThresholdConfig) Policy {
	return codeCoverageThresholdPolicy{cfg}
}

func (p codeCoverageThresholdPolicy) Name() string { return "code_coverage_threshold" }
func (p codeCoverageThresholdPolicy) Description() string {
	return "requires measured test coverage to meet a minimum percentage"
}
func (p codeCoverageThresholdPolicy) Priority() int { return 60 }
func (p codeCoverageThresholdPolicy) AppliesTo(trig workflow.Trigger) bool {
	return p.cfg.Enabled && triggerTagIn(trig, workflow.TriggerStartVerification)
}

func (p codeCoverageThresholdPolicy) Evaluate(_ context.Context, req Request) PolicyResult {
	if req.Meta.CoveragePercent >= p.cfg.MinPercent {
		return Allow()
	}
	return FromViolations([]Violation{{
		PolicyName: p.Name(),
		Message:    fmt.Sprintf("coverage %.1f%% is below the required %.1f%%", req.Meta.CoveragePercent, p.cfg.MinPercent),
		Severity:   SeverityError,
		Suggestion: "add tests to raise coverage before completing verification",
	}})
}

// securityScanPolicy rejects StartVerification when the recorded scan
// carries more than max_high_severity findings.
type securityScanPolicy struct{ cfg SecurityScanConfig }

func NewSecurityScanPolicy(cfg SecurityScanConfig) Policy { return securityScanPolicy{cfg} }

func (p securityScanPolicy) Name() string        { return "security_scan" }
func (p securityScanPolicy) Description() string { return "caps the number of high-severity security findings" }
func (p securityScanPolicy) Priority() int        { return 15 }
func (p securityScanPolicy) AppliesTo(trig workflow.Trigger) bool {
	return p.cfg.Enabled && triggerTagIn(trig, workflow.TriggerStartVerification)
}

func (p securityScanPolicy) Evaluate(_ context.Context, req Request) PolicyResult {
	if req.Meta.SecurityHighSeverityCount <= p.cfg.MaxHighSeverity {
		return Allow()
	}
	return FromViolations([]Violation{{
		PolicyName: p.Name(),
		Message:    fmt.Sprintf("%d high-severity security findings exceed the allowed %d", req.Meta.SecurityHighSeverityCount, p.cfg.MaxHighSeverity),
		Severity:   SeverityError,
		Suggestion: "resolve high-severity findings before completing verification",
	}})
}

// documentationCheckPolicy warns (doesn't block) StartVerification when
// the session hasn't reported documentation as complete.
type documentationCheckPolicy struct{ cfg DocumentationCheckConfig }

func NewDocumentationCheckPolicy(cfg DocumentationCheckConfig) Policy {
	return documentationCheckPolicy{cfg}
}

func (p documentationCheckPolicy) Name() string        { return "documentation_check" }
func (p documentationCheckPolicy) Description() string  { return "flags task completions missing documentation updates" }
func (p documentationCheckPolicy) Priority() int        { return 70 }
func (p documentationCheckPolicy) AppliesTo(trig workflow.Trigger) bool {
	return p.cfg.Enabled && triggerTagIn(trig, workflow.TriggerStartVerification)
}

func (p documentationCheckPolicy) Evaluate(_ context.Context, req Request) PolicyResult {
	if req.Meta.DocsComplete {
		return Allow()
	}
	return FromViolations([]Violation{{
		PolicyName: p.Name(),
		Message:    "documentation was not marked complete",
		Severity:   SeverityWarning,
		Suggestion: "update relevant docs or mark the task as documentation-exempt",
	}})
}

// performanceRegressionPolicy rejects StartVerification when a recorded
// benchmark regression exceeds max_regression_percent.
type performanceRegressionPolicy struct{ cfg PerformanceRegressionConfig }

func NewPerformanceRegressionPolicy(cfg PerformanceRegressionConfig) Policy {
	return performanceRegressionPolicy{cfg}
}

func (p performanceRegressionPolicy) Name() string { return "performance_regression" }
func (p performanceRegressionPolicy) Description() string {
	return "rejects verification when benchmarks regress beyond a threshold"
}
func (p performanceRegressionPolicy) Priority() int { return 65 }
func (p performanceRegressionPolicy) AppliesTo(trig workflow.Trigger) bool {
	return p.cfg.Enabled && triggerTagIn(trig, workflow.TriggerStartVerification)
}

func (p performanceRegressionPolicy) Evaluate(_ context.Context, req Request) PolicyResult {
	if req.Meta.PerformanceRegressionPercent <= p.cfg.MaxRegressionPercent {
		return Allow()
	}
	return FromViolations([]Violation{{
		PolicyName: p.Name(),
		Message: fmt.Sprintf("performance regressed %.1f%%, exceeding the allowed %.1f%%",
			req.Meta.PerformanceRegressionPercent, p.cfg.MaxRegressionPercent),
		Severity:   SeverityError,
		Suggestion: "investigate the regression before completing verification",
	}})
}

// requireTestsPolicy shells out to cfg.Command on StartVerification and
// rejects on a non-zero exit or timeout.
type requireTestsPolicy struct {
	cfg    RequireTestsConfig
	runner CommandRunner
	dir    string
}

func NewRequireTestsPolicy(cfg RequireTestsConfig, runner CommandRunner, dir string) Policy {
	if runner == nil {
		runner = NewCommandRunner()
	}
	return requireTestsPolicy{cfg: cfg, runner: runner, dir: dir}
}

func (p requireTestsPolicy) Name() string        { return "require_tests" }
func (p requireTestsPolicy) Description() string  { return "runs the configured test command before verification passes" }
func (p requireTestsPolicy) Priority() int        { return 5 }
func (p requireTestsPolicy) AppliesTo(trig workflow.Trigger) bool {
	return p.cfg.Enabled && p.cfg.Command != "" && triggerTagIn(trig, workflow.TriggerStartVerification)
}

func (p requireTestsPolicy) Evaluate(ctx context.Context, req Request) PolicyResult {
	dir := p.dir
	if dir == "" {
		dir = req.Context.ProjectRoot
	}
	exitCode, output, err := p.runner.Run(ctx, dir, p.cfg.Command, p.cfg.Timeout)
	if err != nil {
		return FromViolations([]Violation{{
			PolicyName: p.Name(),
			Message:    "test command failed to run: " + err.Error(),
			Severity:   SeverityError,
			Suggestion: "check the configured test command and working directory",
		}})
	}
	if exitCode == 0 {
		return Allow()
	}
	return FromViolations([]Violation{{
		PolicyName: p.Name(),
		Message:    fmt.Sprintf("test command exited %d: %s", exitCode, truncate(output, 500)),
		Severity:   SeverityError,
		Suggestion: "fix failing tests before starting verification",
	}})
}

// architectureValidationPolicy shells out to cfg.Command on
// StartVerification or CompletePhase and rejects on a non-zero exit or
// timeout.
type architectureValidationPolicy struct {
	cfg    ArchitectureValidationConfig
	runner CommandRunner
	dir    string
}

func NewArchitectureValidationPolicy(cfg ArchitectureValidationConfig, runner CommandRunner, dir string) Policy {
	if runner == nil {
		runner = NewCommandRunner()
	}
	return architectureValidationPolicy{cfg: cfg, runner: runner, dir: dir}
}

func (p architectureValidationPolicy) Name() string { return "architecture_validation" }
func (p architectureValidationPolicy) Description() string {
	return "runs a configured architecture-conformance command before completing a phase"
}
func (p architectureValidationPolicy) Priority() int { return 55 }
func (p architectureValidationPolicy) AppliesTo(trig workflow.Trigger) bool {
	return p.cfg.Enabled && p.cfg.Command != "" &&
		triggerTagIn(trig, workflow.TriggerStartVerification, workflow.TriggerCompletePhase)
}

func (p architectureValidationPolicy) Evaluate(ctx context.Context, req Request) PolicyResult {
	dir := p.dir
	if dir == "" {
		dir = req.Context.ProjectRoot
	}
	exitCode, output, err := p.runner.Run(ctx, dir, p.cfg.Command, p.cfg.Timeout)
	if err != nil {
		return FromViolations([]Violation{{
			PolicyName: p.Name(),
			Message:    "architecture check failed to run: " + err.Error(),
			Severity:   SeverityError,
			Suggestion: "check the configured command and working directory",
		}})
	}
	if exitCode == 0 {
		return Allow()
	}
	return FromViolations([]Violation{{
		PolicyName: p.Name(),
		Message:    fmt.Sprintf("architecture check exited %d: %s", exitCode, truncate(output, 500)),
		Severity:   SeverityError,
		Suggestion: "resolve architecture violations before completing the phase",
	}})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
