package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowctl/flowctl/internal/eventbus"
	"github.com/flowctl/flowctl/internal/ids"
	"github.com/flowctl/flowctl/internal/orchestrator/compensation"
	"github.com/flowctl/flowctl/internal/policy"
	"github.com/flowctl/flowctl/internal/pubsub"
	"github.com/flowctl/flowctl/internal/scout"
	"github.com/flowctl/flowctl/internal/session"
	"github.com/flowctl/flowctl/internal/vcs"
	"github.com/flowctl/flowctl/internal/workflow"
)

// fakeStore is an in-memory double for workflow.Store, WorktreeStore, and
// compensation.Store all at once, mirroring internal/session's own
// fakeStore test double plus the compensation/worktree surface the
// orchestrator additionally needs.
type fakeStore struct {
	mu            sync.Mutex
	sessions      map[ids.SessionID]*workflow.Session
	transitions   map[ids.SessionID][]workflow.Transition
	effects       map[ids.SessionID][]compensation.Effect
	compensations map[ids.SessionID][]compensation.CompensationRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:      map[ids.SessionID]*workflow.Session{},
		transitions:   map[ids.SessionID][]workflow.Transition{},
		effects:       map[ids.SessionID][]compensation.Effect{},
		compensations: map[ids.SessionID][]compensation.CompensationRecord{},
	}
}

func (f *fakeStore) CreateSession(_ context.Context, s *workflow.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, id ids.SessionID) (*workflow.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, &workflow.SessionNotFoundError{SessionID: id}
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) ApplyTransition(_ context.Context, id ids.SessionID, expectedVersion int64, next workflow.State, tr workflow.Transition, ev workflow.Event) (*workflow.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, &workflow.SessionNotFoundError{SessionID: id}
	}
	if s.Version != expectedVersion {
		return nil, &workflow.OptimisticConcurrencyConflictError{SessionID: id}
	}
	s.CurrentState = next
	s.Version++
	s.UpdatedAt = tr.Timestamp
	s.LastActivityAt = tr.Timestamp
	f.transitions[id] = append(f.transitions[id], tr)
	_ = ev
	cp := *s
	return &cp, nil
}

func (f *fakeStore) ListTransitions(_ context.Context, id ids.SessionID, _ int) ([]workflow.Transition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]workflow.Transition{}, f.transitions[id]...), nil
}

func (f *fakeStore) ActiveSessions(_ context.Context) ([]*workflow.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*workflow.Session
	for _, s := range f.sessions {
		if !s.CurrentState.IsTerminal() {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) SetWorktree(_ context.Context, id ids.SessionID, branchName, worktreePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return &workflow.SessionNotFoundError{SessionID: id}
	}
	s.BranchName, s.WorktreePath = branchName, worktreePath
	return nil
}

func (f *fakeStore) RecordEffect(_ context.Context, e compensation.Effect) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.effects[e.SessionID] = append(f.effects[e.SessionID], e)
	return nil
}

func (f *fakeStore) EffectsSince(_ context.Context, id ids.SessionID) ([]compensation.Effect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]compensation.Effect{}, f.effects[id]...), nil
}

func (f *fakeStore) RecordCompensation(_ context.Context, r compensation.CompensationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compensations[r.SessionID] = append(f.compensations[r.SessionID], r)
	return nil
}

func (f *fakeStore) ListCompensations(_ context.Context, id ids.SessionID) ([]compensation.CompensationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]compensation.CompensationRecord{}, f.compensations[id]...), nil
}

// fakeVCS is a no-op vcs.Provider double. Read operations report a clean
// repo by default; a test mutates the exported fields directly to simulate
// a dirty worktree or a failing write operation. RevertCommit/FileAtRevision/
// RestoreFile record every call so a compensation test can assert ordering.
type fakeVCS struct {
	mu sync.Mutex

	unstagedFiles  []string
	stagedFiles    []string
	untrackedFiles []string

	fileContent map[string]string // revision -> content, keyed "path@revision"

	reverted []string // commit hashes passed to RevertCommit, in call order
	restored []string // "path@revision" passed to RestoreFile, in call order

	branchesCreated  []string // branch names passed to CreateBranch, in call order
	worktreesCreated []string // paths passed to CreateWorktree, in call order
}

func newFakeVCS() *fakeVCS {
	return &fakeVCS{fileContent: map[string]string{}}
}

func (f *fakeVCS) CurrentBranch(context.Context) (string, error) { return "main", nil }
func (f *fakeVCS) StagedFiles(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stagedFiles, nil
}
func (f *fakeVCS) UnstagedFiles(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unstagedFiles, nil
}
func (f *fakeVCS) UntrackedFiles(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.untrackedFiles, nil
}
func (f *fakeVCS) CommitHistory(context.Context, int, string) ([]vcs.CommitInfo, error) {
	return nil, nil
}
func (f *fakeVCS) RepoState(context.Context) (vcs.RepoState, error) {
	return vcs.RepoState{CurrentBranch: "main", IsOnMainBranch: true}, nil
}
func (f *fakeVCS) StashCount(context.Context) (int, error) { return 0, nil }

func (f *fakeVCS) CreateBranch(_ context.Context, name, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branchesCreated = append(f.branchesCreated, name)
	return nil
}
func (f *fakeVCS) DeleteBranch(context.Context, string) error { return nil }
func (f *fakeVCS) CreateWorktree(_ context.Context, path, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.worktreesCreated = append(f.worktreesCreated, path)
	return nil
}
func (f *fakeVCS) RemoveWorktree(context.Context, string) error { return nil }
func (f *fakeVCS) ListWorktrees(context.Context) ([]vcs.WorktreeInfo, error) {
	return nil, nil
}
func (f *fakeVCS) StageFiles(context.Context, []string) error          { return nil }
func (f *fakeVCS) Commit(context.Context, string, string) (string, error) { return "deadbeef", nil }
func (f *fakeVCS) Push(context.Context, string, bool) error             { return nil }
func (f *fakeVCS) Pull(context.Context, string) error                   { return nil }

func (f *fakeVCS) RevertCommit(_ context.Context, hash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reverted = append(f.reverted, hash)
	return "revert-" + hash, nil
}
func (f *fakeVCS) FileAtRevision(_ context.Context, path, revision string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fileContent[path+"@"+revision], nil
}
func (f *fakeVCS) RestoreFile(_ context.Context, path, revision string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restored = append(f.restored, path+"@"+revision)
	return nil
}

func (f *fakeVCS) CreatePR(context.Context, vcs.PullRequestInput) (*vcs.PullRequest, error) {
	return nil, nil
}
func (f *fakeVCS) MergePR(context.Context, string, vcs.MergeStrategy) error { return nil }
func (f *fakeVCS) ListPRs(context.Context, vcs.PRState, int) ([]vcs.PullRequest, error) {
	return nil, nil
}
func (f *fakeVCS) RegisterWebhook(context.Context, string, []string, string) (*vcs.Webhook, error) {
	return nil, nil
}
func (f *fakeVCS) UnregisterWebhook(context.Context, string) error { return nil }

var _ vcs.Provider = (*fakeVCS)(nil)

// testHarness wires a real Engine, Scout, GuardProvider, Bus, and Session
// Manager over the fakes above, the same composition cmd.newApp performs
// against real adapters in production.
type testHarness struct {
	orch  *Orchestrator
	store *fakeStore
	vcs   *fakeVCS
	bus   *eventbus.Bus
	root  string
}

func newHarness(t *testing.T, policies []policy.Policy) *testHarness {
	t.Helper()
	store := newFakeStore()
	engine := workflow.NewEngine(store)
	sessions := session.New(session.DefaultConfig(), engine)

	fv := newFakeVCS()
	vcsFactory := func(string) vcs.Provider { return fv }
	sct := scout.New(scout.DefaultConfig(), vcsFactory, nil, nil)

	guard := policy.NewGuardProvider(policies, false)
	bus := eventbus.New(64)

	orch := New(Config{}, engine, store, store, guard, sct, bus, store, vcsFactory, sessions)
	return &testHarness{orch: orch, store: store, vcs: fv, bus: bus, root: "/proj"}
}

// drain reads every event currently buffered on sub without blocking.
func drain(sub <-chan pubsub.Event[eventbus.DomainEvent]) []eventbus.DomainEvent {
	var out []eventbus.DomainEvent
	for {
		select {
		case ev := <-sub:
			out = append(out, ev.Payload)
		default:
			return out
		}
	}
}

// Scenario 1: happy start. StartSession discovers context and transitions
// Initializing -> Ready, emitting SessionStarted, ContextDiscovered, and
// StateTransitioned.
func TestOrchestrator_StartSession_HappyPath(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	sub := h.bus.Subscribe(ctx)

	sess, err := h.orch.StartSession(ctx, h.root, "proj-1", "T-1", "op-1", workflow.NewManualReviewPlan(""))
	require.NoError(t, err)
	require.Equal(t, workflow.StateReady, sess.CurrentState.Tag)

	events := drain(sub)
	var subjects []eventbus.Subject
	for _, ev := range events {
		subjects = append(subjects, ev.Subject)
	}
	require.Contains(t, subjects, eventbus.SessionStarted)
	require.Contains(t, subjects, eventbus.ContextDiscovered)
	require.Contains(t, subjects, eventbus.StateTransitioned)

	history, err := h.orch.History(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, workflow.StateInitializing, history[0].From.Tag)
	require.Equal(t, workflow.StateReady, history[0].To.Tag)
}

// Scenario 2: guarded transition blocked. A session in Executing with a
// dirty worktree hits the CleanWorktree policy on StartVerification: no
// state change, a PolicyViolationError, and no Transition row added.
func TestOrchestrator_Transition_BlockedByCleanWorktreePolicy(t *testing.T) {
	cleanWorktree := policy.NewCleanWorktreePolicy(policy.CleanWorktreeConfig{Enabled: true, AllowUntracked: true})
	h := newHarness(t, []policy.Policy{cleanWorktree})
	ctx := context.Background()

	sess, err := h.orch.StartSession(ctx, h.root, "proj-1", "T-1", "op-1", workflow.NewManualReviewPlan(""))
	require.NoError(t, err)

	_, err = h.orch.Transition(ctx, sess.ID, workflow.StartExecution("phase-1"), policy.RequestMeta{}, h.root)
	require.NoError(t, err)

	h.vcs.unstagedFiles = []string{"a.go", "b.go", "c.go"}
	h.orch.scout.Invalidate(h.root)

	_, err = h.orch.Transition(ctx, sess.ID, workflow.StartVerification(), policy.RequestMeta{}, h.root)
	require.Error(t, err)
	var violationErr *PolicyViolationError
	require.ErrorAs(t, err, &violationErr)
	require.False(t, violationErr.Result.Allowed)
	require.Len(t, violationErr.Result.Violations, 1)
	require.Equal(t, "clean_worktree", violationErr.Result.Violations[0].PolicyName)

	current, err := h.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StateExecuting, current.CurrentState.Tag)

	history, err := h.orch.History(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2) // the initial Ready transition plus StartExecution; the blocked StartVerification added none
}

// A plan that skips Planning entirely (Ready -> Executing) still gets its
// worktree allocated on that first entry into Executing; the gate isn't
// keyed to Planning specifically (§4.6).
func TestOrchestrator_Transition_AllocatesWorktreeOnDirectReadyToExecuting(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	sess, err := h.orch.StartSession(ctx, h.root, "proj-1", "T-1", "op-1", workflow.NewManualReviewPlan(""))
	require.NoError(t, err)
	require.Empty(t, h.vcs.branchesCreated)
	require.Empty(t, h.vcs.worktreesCreated)

	tr, err := h.orch.Transition(ctx, sess.ID, workflow.StartExecution("phase-1"), policy.RequestMeta{}, h.root)
	require.NoError(t, err)
	require.Equal(t, workflow.StateExecuting, tr.To.Tag)

	require.Len(t, h.vcs.branchesCreated, 1)
	require.Len(t, h.vcs.worktreesCreated, 1)

	current, err := h.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.NotEmpty(t, current.BranchName)
	require.NotEmpty(t, current.WorktreePath)

	// Verifying, then PhaseComplete, then a second StartExecution re-enters
	// Executing without allocating a second worktree: the session already
	// has one.
	_, err = h.orch.Transition(ctx, sess.ID, workflow.StartVerification(), policy.RequestMeta{}, h.root)
	require.NoError(t, err)
	_, err = h.orch.Transition(ctx, sess.ID, workflow.VerificationPassed(), policy.RequestMeta{}, h.root)
	require.NoError(t, err)
	_, err = h.orch.Transition(ctx, sess.ID, workflow.StartExecution("phase-2"), policy.RequestMeta{}, h.root)
	require.NoError(t, err)
	require.Len(t, h.vcs.branchesCreated, 1)
	require.Len(t, h.vcs.worktreesCreated, 1)
}

// Scenario 5: compensation AutoRevert. A session with recorded effects and
// an AutoRevert plan that fails (Error trigger) has its effects reversed in
// reverse-of-recording order, each outcome recorded, and
// CompensationSucceeded published.
func TestOrchestrator_Transition_ErrorTriggersAutoRevertCompensation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	sess, err := h.orch.StartSession(ctx, h.root, "proj-1", "T-1", "op-1", workflow.NewAutoRevertPlan("main"))
	require.NoError(t, err)
	_, err = h.orch.Transition(ctx, sess.ID, workflow.StartExecution("phase-1"), policy.RequestMeta{}, h.root)
	require.NoError(t, err)

	h.vcs.fileContent["p.go@h0"] = "old content"
	h.vcs.fileContent["p.go@"] = "new content"

	require.NoError(t, h.store.RecordEffect(ctx, compensation.NewGitCommitEffect(sess.ID, "T-1", "a1")))
	require.NoError(t, h.store.RecordEffect(ctx, compensation.NewFileModificationEffect(sess.ID, "T-1", "p.go", "h0", "h1")))

	sub := h.bus.Subscribe(ctx)

	tr, err := h.orch.Transition(ctx, sess.ID, workflow.Error("tests failed"), policy.RequestMeta{}, h.root)
	require.NoError(t, err)
	require.Equal(t, workflow.StateFailed, tr.To.Tag)
	require.True(t, tr.To.Recoverable)

	records, err := h.store.ListCompensations(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Execute walks effects newest-first: FileModification was recorded
	// after GitCommit, so its RestoreFile compensation runs first.
	require.Equal(t, compensation.ActionRestoreFile, records[0].Action)
	require.Equal(t, compensation.ResultSuccess, records[0].Status)
	require.Equal(t, compensation.ActionGitRevert, records[1].Action)
	require.Equal(t, compensation.ResultSuccess, records[1].Status)

	require.Equal(t, []string{"p.go@h0"}, h.vcs.restored)
	require.Equal(t, []string{"a1"}, h.vcs.reverted)

	events := drain(sub)
	var sawSucceeded bool
	for _, ev := range events {
		if ev.Subject == eventbus.CompensationSucceeded {
			sawSucceeded = true
		}
	}
	require.True(t, sawSucceeded)
}

// An Error trigger with a non-AutoRevert compensation plan still fails the
// session but never invokes the compensation engine.
func TestOrchestrator_Transition_ErrorWithoutAutoRevertSkipsCompensation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	sess, err := h.orch.StartSession(ctx, h.root, "proj-1", "T-1", "op-1", workflow.NewManualReviewPlan("needs a human"))
	require.NoError(t, err)
	_, err = h.orch.Transition(ctx, sess.ID, workflow.StartExecution("phase-1"), policy.RequestMeta{}, h.root)
	require.NoError(t, err)

	require.NoError(t, h.store.RecordEffect(ctx, compensation.NewGitCommitEffect(sess.ID, "T-1", "a1")))

	tr, err := h.orch.Transition(ctx, sess.ID, workflow.Error("tests failed"), policy.RequestMeta{}, h.root)
	require.NoError(t, err)
	require.Equal(t, workflow.StateFailed, tr.To.Tag)

	records, err := h.store.ListCompensations(ctx, sess.ID)
	require.NoError(t, err)
	require.Empty(t, records)
	require.Empty(t, h.vcs.reverted)
}
