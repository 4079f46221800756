package policy

import "time"

// Config aggregates every built-in policy's settings, mapstructure-tagged
// to mirror the nested config style of the teacher's internal/config
// (OrchestrationConfig, TimeoutsConfig): one struct field per sub-config,
// each with its own defaults constructor.
type Config struct {
	FailFast bool `mapstructure:"fail_fast"`

	WipLimit                WipLimitConfig                `mapstructure:"wip_limit"`
	CleanWorktree           CleanWorktreeConfig            `mapstructure:"clean_worktree"`
	BranchNaming            BranchNamingConfig             `mapstructure:"branch_naming"`
	RequireChangelog        RequireChangelogConfig         `mapstructure:"require_changelog"`
	RequireConventionalCommit RequireConventionalCommitConfig `mapstructure:"require_conventional_commit"`
	RequireCodeReview       RequireCodeReviewConfig        `mapstructure:"require_code_review"`
	CodeCoverageThreshold   CodeCoverageThresholdConfig    `mapstructure:"code_coverage_threshold"`
	SecurityScan            SecurityScanConfig             `mapstructure:"security_scan"`
	DocumentationCheck       DocumentationCheckConfig       `mapstructure:"documentation_check"`
	ArchitectureValidation   ArchitectureValidationConfig   `mapstructure:"architecture_validation"`
	PerformanceRegression    PerformanceRegressionConfig    `mapstructure:"performance_regression"`
	RequireTests             RequireTestsConfig             `mapstructure:"require_tests"`
	VersionChangeGate        VersionChangeGateConfig        `mapstructure:"version_change_gate"`
	FreshnessGate            FreshnessGateConfig            `mapstructure:"freshness_gate"`
}

type WipLimitConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxInProgress int  `mapstructure:"max_in_progress"`
}

type CleanWorktreeConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	AllowUntracked bool `mapstructure:"allow_untracked"`
}

type BranchNamingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Pattern string `mapstructure:"pattern"`
}

type RequireChangelogConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Filename string `mapstructure:"filename"`
}

type RequireConventionalCommitConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Pattern string `mapstructure:"pattern"`
}

type RequireCodeReviewConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	MinApprovals int  `mapstructure:"min_approvals"`
}

type CodeCoverageThresholdConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	MinPercent float64 `mapstructure:"min_percent"`
}

type SecurityScanConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	MaxHighSeverity    int  `mapstructure:"max_high_severity"`
}

type DocumentationCheckConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type ArchitectureValidationConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Command string        `mapstructure:"command"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PerformanceRegressionConfig struct {
	Enabled            bool    `mapstructure:"enabled"`
	MaxRegressionPercent float64 `mapstructure:"max_regression_percent"`
}

type RequireTestsConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Command string        `mapstructure:"command"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type VersionChangeGateConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	MinApprovals    int      `mapstructure:"min_approvals"`
	AllowedBranches []string `mapstructure:"allowed_branches"`
}

type FreshnessGateConfig struct {
	Enabled      bool  `mapstructure:"enabled"`
	MaxStaleAgeMs int64 `mapstructure:"max_stale_age_ms"`
}

// DefaultConfig returns spec.md §6.2's documented policy defaults:
// wip_limit, clean_worktree, branch_naming, require_conventional_commit,
// require_tests and freshness_gate enabled, the other built-ins disabled.
func DefaultConfig() Config {
	return Config{
		FailFast: false,
		WipLimit: WipLimitConfig{Enabled: true, MaxInProgress: 3},
		CleanWorktree: CleanWorktreeConfig{Enabled: true, AllowUntracked: true},
		BranchNaming: BranchNamingConfig{Enabled: true, Pattern: `^(feature|fix|chore)/[a-z0-9-]+$`},
		RequireChangelog: RequireChangelogConfig{Enabled: false, Filename: "CHANGELOG.md"},
		RequireConventionalCommit: RequireConventionalCommitConfig{
			Enabled: true,
			Pattern: `^(feat|fix|chore|docs|test|refactor|perf|style|build|ci)(\([a-z0-9-]+\))?: .+`,
		},
		RequireCodeReview: RequireCodeReviewConfig{Enabled: false, MinApprovals: 1},
		CodeCoverageThreshold: CodeCoverageThresholdConfig{Enabled: false, MinPercent: 80},
		SecurityScan: SecurityScanConfig{Enabled: false, MaxHighSeverity: 0},
		DocumentationCheck: DocumentationCheckConfig{Enabled: false},
		ArchitectureValidation: ArchitectureValidationConfig{
			Enabled: false,
			Command: "",
			Timeout: 60 * time.Second,
		},
		PerformanceRegression: PerformanceRegressionConfig{Enabled: false, MaxRegressionPercent: 10},
		RequireTests: RequireTestsConfig{
			Enabled: true,
			Command: "",
			Timeout: 120 * time.Second,
		},
		VersionChangeGate: VersionChangeGateConfig{
			Enabled:         false,
			MinApprovals:    1,
			AllowedBranches: []string{"main"},
		},
		FreshnessGate: FreshnessGateConfig{Enabled: true, MaxStaleAgeMs: 5 * 60 * 1000},
	}
}
