package vcs

import (
	"errors"
	"fmt"
	"strings"
)

// Git-specific sentinel errors, carried over from the teacher's
// internal/git package and matched against with errors.Is the same way.
var (
	ErrBranchAlreadyCheckedOut = errors.New("branch already checked out in another worktree")
	ErrPathAlreadyExists       = errors.New("worktree path already exists")
	ErrWorktreeLocked          = errors.New("worktree is locked")
	ErrNotGitRepo              = errors.New("not a git repository")
	ErrUnsafeParentDirectory   = errors.New("unsafe parent directory")
	ErrDetachedHead            = errors.New("detached HEAD state")

	// ErrWebhooksUnsupported is returned by a Provider backed by a plain
	// git remote with no hosted-provider API to register a webhook against.
	ErrWebhooksUnsupported = errors.New("webhooks not supported by this provider")

	// ErrGHNotAuthenticated is returned when the gh CLI has no usable
	// credentials for the PR operations.
	ErrGHNotAuthenticated = errors.New("gh CLI is not authenticated")
)

// parseGitError classifies a git subprocess's stderr into one of the
// sentinel errors above, falling back to a plain wrapped error.
func parseGitError(stderr string, original error) error {
	lower := strings.ToLower(stderr)

	switch {
	case strings.Contains(lower, "is already checked out"), strings.Contains(lower, "already checked out at"):
		return fmt.Errorf("%w: %s", ErrBranchAlreadyCheckedOut, stderr)
	case strings.Contains(lower, "already exists"):
		return fmt.Errorf("%w: %s", ErrPathAlreadyExists, stderr)
	case strings.Contains(lower, "is locked"):
		return fmt.Errorf("%w: %s", ErrWorktreeLocked, stderr)
	case strings.Contains(lower, "not a git repository"):
		return fmt.Errorf("%w: %s", ErrNotGitRepo, stderr)
	default:
		return fmt.Errorf("git: %s: %w", stderr, original)
	}
}
