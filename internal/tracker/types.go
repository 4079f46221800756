// Package tracker implements the Tracker Provider (C2): read-only queries
// over an external issue-tracking database, grounded on the teacher's
// internal/beads package (a read-only sqlite client for the beads issue
// tracker) generalized to the five queries this core needs.
package tracker

import (
	"context"
	"time"
)

// IssueSummary is the read-only projection of a tracked Task (§3.1).
type IssueSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	Priority   int       `json:"priority"`
	IssueType  string    `json:"issue_type"`
	Assignee   string    `json:"assignee,omitempty"`
	Labels     []string  `json:"labels,omitempty"`
	BlockedBy  []string  `json:"blocked_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PhaseSummary is the read-only projection of a Plan/Phase (§3.1). Status is
// derived from the statuses of the phase's member issues by the tracker
// itself; this core only reads the result.
type PhaseSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Position int    `json:"position"`
}

// Provider is the port every component consults for tracker state — the
// core never queries the tracker's database directly outside this package
// (§6.5, normative operation names).
type Provider interface {
	IssuesByStatus(ctx context.Context, status string) ([]IssueSummary, error)
	ReadyIssues(ctx context.Context) ([]IssueSummary, error)
	BlockedIssues(ctx context.Context) ([]IssueSummary, error)
	CurrentPhase(ctx context.Context, projectID string) (*PhaseSummary, error)
	Progress(ctx context.Context, projectID string) (float64, error)
	Close() error
}
