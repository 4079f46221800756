package policy

// NewBuiltins constructs the full set of fourteen built-in policies (§4.3)
// from cfg, wiring runner and dir into the two subprocess-backed policies.
// A nil runner falls back to the real os/exec implementation. Disabled
// policies are still constructed and registered — AppliesTo filters them
// out of every evaluation rather than omitting them from ListPolicies.
func NewBuiltins(cfg Config, runner CommandRunner, dir string) ([]Policy, error) {
	branchNaming, err := NewBranchNamingPolicy(cfg.BranchNaming)
	if err != nil {
		return nil, err
	}
	conventionalCommit, err := NewRequireConventionalCommitPolicy(cfg.RequireConventionalCommit)
	if err != nil {
		return nil, err
	}

	return []Policy{
		NewFreshnessGatePolicy(cfg.FreshnessGate),
		NewRequireTestsPolicy(cfg.RequireTests, runner, dir),
		NewSecurityScanPolicy(cfg.SecurityScan),
		NewWipLimitPolicy(cfg.WipLimit),
		NewCleanWorktreePolicy(cfg.CleanWorktree),
		branchNaming,
		conventionalCommit,
		NewRequireChangelogPolicy(cfg.RequireChangelog),
		NewRequireCodeReviewPolicy(cfg.RequireCodeReview),
		NewArchitectureValidationPolicy(cfg.ArchitectureValidation, runner, dir),
		NewPerformanceRegressionPolicy(cfg.PerformanceRegression),
		NewCodeCoverageThresholdPolicy(cfg.CodeCoverageThreshold),
		NewDocumentationCheckPolicy(cfg.DocumentationCheck),
		NewVersionChangeGatePolicy(cfg.VersionChangeGate),
	}, nil
}
