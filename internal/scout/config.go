package scout

import "time"

// Capacities match §4.2's fixed cache sizes.
const (
	FullCacheCapacity    = 10
	GitCacheCapacity     = 50
	TrackerCacheCapacity = 20
)

// Config holds the Context Scout's cache-policy knobs (§4.2, §6.2
// context.* keys).
type Config struct {
	// CacheTTL is the TTL applied to all three caches (default 30s,
	// context.cache_ttl_seconds).
	CacheTTL time.Duration

	// IdleTTL is the shorter TTL applied on GetWithRefresh reads that
	// haven't been explicitly invalidated (default TTL/3).
	IdleTTL time.Duration

	// StaleThreshold is the age at which a snapshot with no other risk
	// signal still escalates to StaleWithRisk ("very old age" in §4.2).
	StaleThreshold time.Duration

	// MaxRecentCommits bounds GitContext.RecentCommits (default 10,
	// context.max_recent_commits).
	MaxRecentCommits int
}

// DefaultConfig returns §6.2's documented defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:         30 * time.Second,
		IdleTTL:          10 * time.Second,
		StaleThreshold:   5 * time.Minute,
		MaxRecentCommits: 10,
	}
}
