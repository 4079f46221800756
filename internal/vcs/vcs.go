// Package vcs provides the VCS Provider port (C1): the boundary every
// worktree, branch, commit, and pull-request operation routes through, so
// the core never invokes a VCS library or a hosted-git-provider API
// directly. RealExecutor implements it by shelling out to the git and gh
// binaries, the same os/exec style the teacher's internal/git package uses
// for worktree management, generalized here to the full read/write/PR
// surface the workflow core needs.
package vcs

import (
	"context"
	"time"
)

// BranchInfo describes a local branch.
type BranchInfo struct {
	Name      string
	IsCurrent bool
}

// WorktreeInfo describes one entry from `git worktree list`.
type WorktreeInfo struct {
	Path   string
	Branch string
	HEAD   string
}

// CommitInfo describes one entry from the commit history.
type CommitInfo struct {
	Hash      string
	ShortHash string
	Subject   string
	Author    string
	Date      time.Time
	IsPushed  bool
}

// RepoState is a consolidated snapshot of the repository's working-tree
// status, answering the §6.4 `repo_state` read operation in one call
// instead of the teacher's separate IsOnMainBranch/IsDetachedHead/
// HasUncommittedChanges/IsWorktree queries.
type RepoState struct {
	CurrentBranch         string
	IsDetachedHead        bool
	IsOnMainBranch        bool
	HasUncommittedChanges bool
	IsWorktree            bool
}

// PRState is the lifecycle state of a pull request.
type PRState string

const (
	PRStateOpen   PRState = "open"
	PRStateClosed PRState = "closed"
	PRStateMerged PRState = "merged"
)

// MergeStrategy selects how a pull request is merged.
type MergeStrategy string

const (
	MergeStrategyMerge  MergeStrategy = "merge"
	MergeStrategySquash MergeStrategy = "squash"
	MergeStrategyRebase MergeStrategy = "rebase"
)

// PullRequest is the result of create_pr / an entry of list_prs.
type PullRequest struct {
	ID        string
	Number    int
	From      string
	To        string
	Title     string
	Body      string
	State     PRState
	URL       string
	Labels    []string
	Assignees []string
	CreatedAt time.Time
}

// PullRequestInput is the argument to CreatePR.
type PullRequestInput struct {
	From      string
	To        string
	Title     string
	Body      string
	Labels    []string
	Assignees []string
}

// Webhook is the result of RegisterWebhook.
type Webhook struct {
	ID     string
	URL    string
	Events []string
}

// Provider is the VCS Provider port (§6.4). Every method that shells out
// takes a context so a caller can bound a slow subprocess; CreateWorktree
// and RemoveWorktree are the only ones besides the PR operations likely to
// block for more than an instant.
type Provider interface {
	// Read operations.
	CurrentBranch(ctx context.Context) (string, error)
	StagedFiles(ctx context.Context) ([]string, error)
	UnstagedFiles(ctx context.Context) ([]string, error)
	UntrackedFiles(ctx context.Context) ([]string, error)
	CommitHistory(ctx context.Context, limit int, branch string) ([]CommitInfo, error)
	RepoState(ctx context.Context) (RepoState, error)
	StashCount(ctx context.Context) (int, error)

	// Write operations.
	CreateBranch(ctx context.Context, name, from string) error
	// DeleteBranch force-deletes a local branch, the `git branch -D`
	// half of §4.6's terminal-transition worktree teardown.
	DeleteBranch(ctx context.Context, name string) error
	CreateWorktree(ctx context.Context, path, branch string) error
	RemoveWorktree(ctx context.Context, path string) error
	ListWorktrees(ctx context.Context) ([]WorktreeInfo, error)
	StageFiles(ctx context.Context, paths []string) error
	Commit(ctx context.Context, message, author string) (string, error)
	Push(ctx context.Context, branch string, force bool) error
	Pull(ctx context.Context, branch string) error

	// RevertCommit creates a new commit that reverses hash, returning the
	// new commit's hash. Used by §4.5 compensation's GitRevert action.
	RevertCommit(ctx context.Context, hash string) (string, error)
	// FileAtRevision returns path's content as of revision ("" means
	// HEAD), used to compute a compensation diff summary.
	FileAtRevision(ctx context.Context, path, revision string) (string, error)
	// RestoreFile checks path out from revision into the working tree, the
	// git half of §4.5 compensation's RestoreFile action.
	RestoreFile(ctx context.Context, path, revision string) error

	// Pull request operations.
	CreatePR(ctx context.Context, in PullRequestInput) (*PullRequest, error)
	MergePR(ctx context.Context, id string, strategy MergeStrategy) error
	ListPRs(ctx context.Context, state PRState, limit int) ([]PullRequest, error)

	// Webhook operations are optional: a Provider that can't support them
	// returns ErrWebhooksUnsupported.
	RegisterWebhook(ctx context.Context, url string, events []string, secret string) (*Webhook, error)
	UnregisterWebhook(ctx context.Context, id string) error
}
