// Package scout implements the Context Scout (C5): a typed, cached
// snapshot of repository, tracker, and project state, carrying an explicit
// freshness classification so a consumer (chiefly the Policy Guard) can
// decide whether a snapshot is too old or too risky to act on. It adapts
// the teacher's internal/cachemanager (ReadThroughCache over a TTL-backed
// InMemoryCacheManager) and internal/watcher (debounced fsnotify) into the
// three-cache, freshness-tagged contract of spec.md §4.2.
package scout

import (
	"time"

	"github.com/flowctl/flowctl/internal/tracker"
	"github.com/flowctl/flowctl/internal/vcs"
)

// FreshnessTag names one of the four freshness classifications of §4.2.
type FreshnessTag string

const (
	Fresh         FreshnessTag = "fresh"
	Acceptable    FreshnessTag = "acceptable"
	Stale         FreshnessTag = "stale"
	StaleWithRisk FreshnessTag = "stale_with_risk"
)

// ContextFreshness is the age/risk classification carried on every
// ProjectContext.
type ContextFreshness struct {
	Tag    FreshnessTag `json:"tag"`
	AgeMs  int64        `json:"age_ms"`
	Reason string       `json:"reason,omitempty"` // only set for StaleWithRisk
}

// IsAcceptable reports whether the freshness is good enough for a consumer
// that requires no older than maxAgeMs (<=0 means "any age is fine, as long
// as there's no raised risk signal") — the predicate FreshnessGate (§4.3)
// evaluates.
func (f ContextFreshness) IsAcceptable(maxAgeMs int64) bool {
	if f.Tag == StaleWithRisk {
		return false
	}
	if maxAgeMs <= 0 {
		return true
	}
	return f.AgeMs <= maxAgeMs
}

// GitContext is the partial VCS snapshot of §3.1.
type GitContext struct {
	Branch            string          `json:"branch"`
	StagedCount       int             `json:"staged_count"`
	UnstagedCount     int             `json:"unstaged_count"`
	UntrackedCount    int             `json:"untracked_count"`
	ConflictedCount   int             `json:"conflicted_count"`
	StashCount        int             `json:"stash_count"`
	RecentCommits     []vcs.CommitInfo `json:"recent_commits,omitempty"`
	IsClean           bool            `json:"is_clean"`
	RepositoryState   vcs.RepoState   `json:"repository_state"`
}

// TrackerContext is the partial tracker snapshot of §3.1.
type TrackerContext struct {
	OpenCount       int                   `json:"open_count"`
	InProgressCount int                   `json:"in_progress_count"`
	ReadyCount      int                   `json:"ready_count"`
	BlockedCount    int                   `json:"blocked_count"`
	CurrentPhase    *tracker.PhaseSummary `json:"current_phase,omitempty"`
	ProgressPercent float64               `json:"progress_percent"`
	Unavailable     bool                  `json:"unavailable,omitempty"`
}

// ProjectConfig is the opaque project configuration surfaced on a snapshot
// (§3.1: "id, name, version"; the core never interprets more than that).
type ProjectConfig struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ProjectContext is the full typed snapshot produced by Discover (§3.1).
type ProjectContext struct {
	ID          string           `json:"id"`
	ProjectRoot string           `json:"project_root"`
	DiscoveredAt time.Time       `json:"discovered_at"`
	Git         GitContext       `json:"git"`
	Tracker     TrackerContext   `json:"tracker"`
	Config      ProjectConfig    `json:"config"`
	Freshness   ContextFreshness `json:"freshness"`
}
