package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowctl/flowctl/internal/ids"
)

func newTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", "README.md")
	run("commit", "-m", "initial commit")

	return dir
}

func TestRealExecutor_CurrentBranch(t *testing.T) {
	dir := newTestRepo(t)
	e := NewRealExecutor(dir)

	branch, err := e.CurrentBranch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "main", branch)
}

func TestRealExecutor_RepoState(t *testing.T) {
	dir := newTestRepo(t)
	e := NewRealExecutor(dir)

	state, err := e.RepoState(context.Background())
	require.NoError(t, err)
	require.Equal(t, "main", state.CurrentBranch)
	require.True(t, state.IsOnMainBranch)
	require.False(t, state.HasUncommittedChanges)
	require.False(t, state.IsWorktree)
}

func TestRealExecutor_StageAndCommit(t *testing.T) {
	dir := newTestRepo(t)
	e := NewRealExecutor(dir)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x\n"), 0o644))

	untracked, err := e.UntrackedFiles(ctx)
	require.NoError(t, err)
	require.Contains(t, untracked, "new.txt")

	require.NoError(t, e.StageFiles(ctx, []string{"new.txt"}))

	staged, err := e.StagedFiles(ctx)
	require.NoError(t, err)
	require.Contains(t, staged, "new.txt")

	hash, err := e.Commit(ctx, "add new.txt", "")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	history, err := e.CommitHistory(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "add new.txt", history[0].Subject)
}

func TestRealExecutor_CreateAndRemoveWorktree(t *testing.T) {
	dir := newTestRepo(t)
	e := NewRealExecutor(dir)
	ctx := context.Background()

	sessionID := ids.NewSessionID()
	path := WorktreePath(dir, sessionID)
	branch := BranchName("T-1", sessionID)

	require.NoError(t, e.CreateWorktree(ctx, path, branch))
	defer func() { _ = e.RemoveWorktree(ctx, path) }()

	worktrees, err := e.ListWorktrees(ctx)
	require.NoError(t, err)
	require.Len(t, worktrees, 2)

	orphans, err := ScanOrphanWorktrees(ctx, e, dir)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	require.Equal(t, sessionID.String(), SessionIDFromWorktreePath(orphans[0].Path))

	require.NoError(t, e.RemoveWorktree(ctx, path))

	worktrees, err = e.ListWorktrees(ctx)
	require.NoError(t, err)
	require.Len(t, worktrees, 1)
}

func TestRealExecutor_StashCountEmpty(t *testing.T) {
	dir := newTestRepo(t)
	e := NewRealExecutor(dir)

	count, err := e.StashCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestRealExecutor_CreateBranch(t *testing.T) {
	dir := newTestRepo(t)
	e := NewRealExecutor(dir)
	ctx := context.Background()

	require.NoError(t, e.CreateBranch(ctx, "feature/x", ""))

	out, err := exec.Command("git", "-C", dir, "show-ref", "--verify", "--quiet", "refs/heads/feature/x").CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestParseGitError(t *testing.T) {
	err := parseGitError("fatal: 'foo' is already checked out at '/bar'", assertError{})
	require.ErrorIs(t, err, ErrBranchAlreadyCheckedOut)
}

type assertError struct{}

func (assertError) Error() string { return "exit status 128" }
