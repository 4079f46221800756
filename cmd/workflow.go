// Package cmd implements flowctl's cobra CLI: a single consolidated
// `workflow` command with an `--action` flag, grounded on the teacher's
// cmd/root.go (persistent flags bound through viper, a RunE handler that
// constructs the wiring and runs one operation) and cmd/daemon.go
// (createDaemonControlPlane's one-function composition-root style, reused
// here as newApp).
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowctl/flowctl/internal/config"
	"github.com/flowctl/flowctl/internal/ids"
	"github.com/flowctl/flowctl/internal/log"
	"github.com/flowctl/flowctl/internal/orchestrator"
	"github.com/flowctl/flowctl/internal/policy"
	"github.com/flowctl/flowctl/internal/workflow"
)

var (
	version = "dev"

	cfgFile     string
	projectRoot string
	debugFlag   bool

	action           string
	sessionIDFlag    string
	projectIDFlag    string
	taskIDFlag       string
	operatorIDFlag   string
	triggerJSON      string
	compensationKind string
	compensationArg  string
	limitFlag        int
	policyNameFlag   string

	// RequestMeta flags, passed through verbatim to the policies a
	// transition or check_policies call evaluates.
	commitMessageFlag   string
	modifiedFilesFlag   []string
	approvalsCountFlag  int
	coveragePercentFlag float64
	securityHighFlag    int
	docsCompleteFlag    bool
	architectureOKFlag  string
	testsOKFlag         string
	perfRegressionFlag  float64
	versionBumpFlag     string
)

var rootCmd = &cobra.Command{
	Use:     "flowctl",
	Short:   "A workflow execution core for agent-driven development sessions",
	Long:    `flowctl drives per-task finite state machines through context discovery, policy evaluation, and compensating VCS side effects.`,
	Version: version,
}

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Run one workflow action and print its JSON result",
	Long: `The single consolidated entry point for every workflow operation
(spec §6.1): start, status, transition, history, discover_context,
check_policies, list_sessions, end_session, list_policies. Pick one with
--action; each action's required inputs are documented in its own flags.`,
	RunE: runWorkflow,
}

func init() {
	// This CLI reports every failure through its own JSON error envelope
	// on stdout; cobra's default "Error: ...\nUsage:..." text on stderr
	// would just be noise on top of that.
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	rootCmd.AddCommand(workflowCmd)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./.flowctl/config.yaml or $HOME/.config/flowctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&projectRoot, "project-root", "", "project working directory (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "enable debug logging (also: FLOWCTL_DEBUG=1)")

	workflowCmd.Flags().StringVar(&action, "action", "", "start|status|transition|history|discover_context|check_policies|list_sessions|end_session|list_policies")
	workflowCmd.Flags().StringVar(&sessionIDFlag, "session-id", "", "session id (status, transition, history, end_session)")
	workflowCmd.Flags().StringVar(&projectIDFlag, "project-id", "", "project id (start, discover_context, check_policies)")
	workflowCmd.Flags().StringVar(&taskIDFlag, "task-id", "", "task id (start)")
	workflowCmd.Flags().StringVar(&operatorIDFlag, "operator-id", "", "operator id (start)")
	workflowCmd.Flags().StringVar(&triggerJSON, "trigger", "", "trigger as tagged-variant JSON, e.g. {\"tag\":\"start_planning\",\"phase_id\":\"P-1\"} (transition, check_policies)")
	workflowCmd.Flags().StringVar(&compensationKind, "compensation-plan", "manual_review", "auto_revert|manual_review|approve_and_merge (start)")
	workflowCmd.Flags().StringVar(&compensationArg, "compensation-arg", "", "target_branch (auto_revert) or reason (manual_review) or pr_url (approve_and_merge)")
	workflowCmd.Flags().IntVar(&limitFlag, "limit", 0, "row limit (history)")
	workflowCmd.Flags().StringVar(&policyNameFlag, "policy-name", "", "restrict check_policies to one registered policy (dry-run)")

	workflowCmd.Flags().StringVar(&commitMessageFlag, "commit-message", "", "pending commit message, for RequireChangelog/RequireConventionalCommit")
	workflowCmd.Flags().StringSliceVar(&modifiedFilesFlag, "modified-file", nil, "a modified file path (repeatable)")
	workflowCmd.Flags().IntVar(&approvalsCountFlag, "approvals-count", 0, "code review approvals, for RequireCodeReview/VersionChangeGate")
	workflowCmd.Flags().Float64Var(&coveragePercentFlag, "coverage-percent", 0, "measured coverage percent, for CodeCoverageThreshold")
	workflowCmd.Flags().IntVar(&securityHighFlag, "security-high-severity-count", 0, "high-severity findings, for SecurityScan")
	workflowCmd.Flags().BoolVar(&docsCompleteFlag, "docs-complete", false, "documentation completeness, for DocumentationCheck")
	workflowCmd.Flags().StringVar(&architectureOKFlag, "architecture-ok", "", "true|false, pre-computed ArchitectureValidation result")
	workflowCmd.Flags().StringVar(&testsOKFlag, "tests-ok", "", "true|false, pre-computed RequireTests result")
	workflowCmd.Flags().Float64Var(&perfRegressionFlag, "performance-regression-percent", 0, "measured regression percent, for PerformanceRegression")
	workflowCmd.Flags().StringVar(&versionBumpFlag, "version-bump", "", "\"\"|patch|minor|major, for VersionChangeGate")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func runWorkflow(c *cobra.Command, _ []string) error {
	debug := os.Getenv("FLOWCTL_DEBUG") != "" || debugFlag
	if debug {
		logPath := os.Getenv("FLOWCTL_LOG")
		if logPath == "" {
			logPath = "flowctl-debug.log"
		}
		cleanup, err := log.Init(logPath)
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		defer cleanup()
	}

	root := projectRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}
		root = wd
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return writeError(errKindPersistence, fmt.Sprintf("loading config: %v", err), nil)
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, root)
	if err != nil {
		return writeError(errKindPersistence, err.Error(), nil)
	}
	defer a.Close()

	result, opErr := dispatch(ctx, c, a, root)
	if opErr != nil {
		return writeOperationError(opErr)
	}
	return writeResult(result)
}

func dispatch(ctx context.Context, _ *cobra.Command, a *app, root string) (any, error) {
	switch action {
	case "start":
		plan, err := buildCompensationPlan()
		if err != nil {
			return nil, err
		}
		return a.orch.StartSession(ctx, root, projectIDFlag, taskIDFlag, operatorIDFlag, plan)

	case "status":
		id, err := requireSessionID()
		if err != nil {
			return nil, err
		}
		state, pctx, policies, err := a.orch.Status(ctx, id, root)
		if err != nil {
			return nil, err
		}
		return struct {
			State    workflow.State           `json:"state"`
			Context  any                       `json:"context"`
			Policies []policy.PolicyInfo       `json:"policies"`
		}{State: state, Context: pctx, Policies: policies}, nil

	case "transition":
		id, err := requireSessionID()
		if err != nil {
			return nil, err
		}
		trig, err := parseTrigger()
		if err != nil {
			return nil, err
		}
		meta := buildRequestMeta()
		return a.orch.Transition(ctx, id, trig, meta, root)

	case "history":
		id, err := requireSessionID()
		if err != nil {
			return nil, err
		}
		return a.orch.History(ctx, id, limitFlag)

	case "discover_context":
		return a.orch.DiscoverContext(ctx, root, projectIDFlag)

	case "check_policies":
		trig := workflow.Trigger{}
		if triggerJSON != "" {
			parsed, err := parseTrigger()
			if err != nil {
				return nil, err
			}
			trig = parsed
		}
		meta := buildRequestMeta()
		if policyNameFlag != "" {
			pctx, err := a.orch.DiscoverContext(ctx, root, projectIDFlag)
			if err != nil {
				return nil, err
			}
			return a.orch.CheckPoliciesDryRun(ctx, policyNameFlag, policy.Request{Trigger: trig, Context: pctx, Meta: meta})
		}
		return a.orch.CheckPolicies(ctx, root, projectIDFlag, trig, meta)

	case "list_sessions":
		return a.orch.ActiveSessions(ctx)

	case "end_session":
		id, err := requireSessionID()
		if err != nil {
			return nil, err
		}
		return a.orch.EndSession(ctx, id, root)

	case "list_policies":
		return a.orch.ListPolicies(), nil

	case "":
		return nil, fmt.Errorf("--action is required")

	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

func requireSessionID() (ids.SessionID, error) {
	if sessionIDFlag == "" {
		return "", fmt.Errorf("--session-id is required for this action")
	}
	return ids.SessionID(sessionIDFlag), nil
}

func parseTrigger() (workflow.Trigger, error) {
	if triggerJSON == "" {
		return workflow.Trigger{}, fmt.Errorf("--trigger is required for this action")
	}
	var trig workflow.Trigger
	if err := json.Unmarshal([]byte(triggerJSON), &trig); err != nil {
		return workflow.Trigger{}, fmt.Errorf("parsing --trigger: %w", err)
	}
	return trig, nil
}

func buildCompensationPlan() (workflow.CompensationPlan, error) {
	switch workflow.CompensationPlanKind(compensationKind) {
	case workflow.AutoRevert:
		return workflow.NewAutoRevertPlan(compensationArg), nil
	case workflow.ManualReview, "":
		return workflow.NewManualReviewPlan(compensationArg), nil
	case workflow.ApproveAndMerge:
		return workflow.NewApproveAndMergePlan(compensationArg, true), nil
	default:
		return workflow.CompensationPlan{}, fmt.Errorf("unknown --compensation-plan %q", compensationKind)
	}
}

func buildRequestMeta() policy.RequestMeta {
	meta := policy.RequestMeta{
		CommitMessage:                commitMessageFlag,
		ModifiedFiles:                modifiedFilesFlag,
		ApprovalsCount:               approvalsCountFlag,
		CoveragePercent:              coveragePercentFlag,
		SecurityHighSeverityCount:    securityHighFlag,
		DocsComplete:                 docsCompleteFlag,
		PerformanceRegressionPercent: perfRegressionFlag,
		VersionBump:                  versionBumpFlag,
	}
	if b, err := parseOptionalBool(architectureOKFlag); err == nil {
		meta.ArchitectureOK = b
	}
	if b, err := parseOptionalBool(testsOKFlag); err == nil {
		meta.TestsOK = b
	}
	return meta
}

func parseOptionalBool(s string) (*bool, error) {
	switch s {
	case "":
		return nil, fmt.Errorf("unset")
	case "true":
		v := true
		return &v, nil
	case "false":
		v := false
		return &v, nil
	default:
		return nil, fmt.Errorf("invalid bool %q", s)
	}
}

// errKind names one of spec §7's error taxonomy entries, used in the
// {error_kind, message, details?} envelope.
type errKind string

const (
	errKindInvalidTransition errKind = "InvalidTransition"
	errKindSessionNotFound   errKind = "SessionNotFound"
	errKindOptimisticConflict errKind = "OptimisticConcurrencyConflict"
	errKindPolicyViolation   errKind = "PolicyViolation"
	errKindContextError      errKind = "ContextError"
	errKindPersistence       errKind = "Persistence"
	errKindCompensationFailed errKind = "CompensationFailed"
	errKindTimeout           errKind = "Timeout"
	errKindCancelled         errKind = "Cancelled"
	errKindUnknown           errKind = "Unknown"
)

// classify maps a returned error to its §7 taxonomy entry and an optional
// details payload (e.g. the policy violations that blocked a transition).
func classify(err error) (errKind, any) {
	var invalidTr *workflow.InvalidTransitionError
	if errors.As(err, &invalidTr) {
		return errKindInvalidTransition, invalidTr
	}
	var notFound *workflow.SessionNotFoundError
	if errors.As(err, &notFound) {
		return errKindSessionNotFound, notFound
	}
	var conflict *workflow.OptimisticConcurrencyConflictError
	if errors.As(err, &conflict) {
		return errKindOptimisticConflict, conflict
	}
	var persist *workflow.PersistenceError
	if errors.As(err, &persist) {
		return errKindPersistence, persist.Message
	}
	var violation *orchestrator.PolicyViolationError
	if errors.As(err, &violation) {
		return errKindPolicyViolation, violation.Result.Violations
	}
	var ctxErr *orchestrator.ContextError
	if errors.As(err, &ctxErr) {
		return errKindContextError, ctxErr.Message
	}
	var compErr *orchestrator.CompensationFailedError
	if errors.As(err, &compErr) {
		return errKindCompensationFailed, compErr
	}
	var timeoutErr *orchestrator.TimeoutError
	if errors.As(err, &timeoutErr) {
		return errKindTimeout, timeoutErr
	}
	var cancelErr *orchestrator.CancelledError
	if errors.As(err, &cancelErr) {
		return errKindCancelled, cancelErr.Reason
	}
	return errKindUnknown, nil
}

type errorEnvelope struct {
	ErrorKind errKind `json:"error_kind"`
	Message   string  `json:"message"`
	Details   any     `json:"details,omitempty"`
}

// envelopeErr marks an error whose {error_kind, message, details} envelope
// has already been written to stdout, so Execute's caller knows to exit
// non-zero without printing anything further.
type envelopeErr struct{ err error }

func (e *envelopeErr) Error() string { return e.err.Error() }
func (e *envelopeErr) Unwrap() error { return e.err }

func writeOperationError(err error) error {
	kind, details := classify(err)
	return writeError(kind, err.Error(), details)
}

func writeError(kind errKind, message string, details any) error {
	env := errorEnvelope{ErrorKind: kind, Message: message, Details: details}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return err
	}
	return &envelopeErr{err: fmt.Errorf("%s: %s", kind, message)}
}

func writeResult(result any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
