package vcs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/flowctl/flowctl/internal/ids"
)

// WorktreePath returns the on-disk path a session's worktree lives at:
// {repo_root}/.worktrees/{session_id}, per the fixed naming convention of
// §4.6 — unlike the teacher's DetermineWorktreePath, which probes sibling
// directories and falls back to a safe parent, this core always nests
// worktrees inside the repository itself so an orphan scan on process
// start only ever needs to look in one place.
func WorktreePath(repoRoot string, sessionID ids.SessionID) string {
	return filepath.Join(repoRoot, ".worktrees", sessionID.String())
}

// BranchName returns the branch name a session's worktree is created on:
// feature/{task_id}/{session_id}.
func BranchName(taskID string, sessionID ids.SessionID) string {
	return fmt.Sprintf("feature/%s/%s", taskID, sessionID.String())
}

// ScanOrphanWorktrees lists every worktree nested under repoRoot's
// .worktrees directory that ListWorktrees still reports, for a caller to
// cross-reference against its set of live sessions and prune anything
// left over from a crashed process. It only lists; it removes nothing, and
// nothing in this module runs it on process start.
func ScanOrphanWorktrees(ctx context.Context, p Provider, repoRoot string) ([]WorktreeInfo, error) {
	all, err := p.ListWorktrees(ctx)
	if err != nil {
		return nil, err
	}

	prefix := filepath.Join(repoRoot, ".worktrees") + string(filepath.Separator)
	var nested []WorktreeInfo
	for _, wt := range all {
		if strings.HasPrefix(wt.Path, prefix) {
			nested = append(nested, wt)
		}
	}
	return nested, nil
}

// SessionIDFromWorktreePath extracts the trailing path element from a
// worktree path produced by WorktreePath, for matching a scanned orphan
// back to a session id.
func SessionIDFromWorktreePath(path string) string {
	return filepath.Base(path)
}
