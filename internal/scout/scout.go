package scout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowctl/flowctl/internal/cachemanager"
	"github.com/flowctl/flowctl/internal/log"
	"github.com/flowctl/flowctl/internal/tracker"
	"github.com/flowctl/flowctl/internal/vcs"
	"github.com/flowctl/flowctl/internal/watcher"
)

// VCSFactory resolves a vcs.Provider rooted at a project's working
// directory. The scout never holds a provider across requests; it asks for
// one each time it needs to talk to a given root.
type VCSFactory func(projectRoot string) vcs.Provider

// TrackerFactory resolves a tracker.Provider for a project id.
type TrackerFactory func(ctx context.Context, projectID string) (tracker.Provider, error)

// ConfigLookup resolves a project's opaque ProjectConfig. A nil lookup
// falls back to a ProjectConfig carrying only the id.
type ConfigLookup func(ctx context.Context, projectID string) (ProjectConfig, error)

// Scout implements the Context Scout (C5): discover, git_status,
// tracker_state, and invalidate over three independently-TTL'd caches,
// adapted from the teacher's cachemanager.InMemoryCacheManager /
// ReadThroughCache.
type Scout struct {
	cfg Config

	vcsFactory     VCSFactory
	trackerFactory TrackerFactory
	configLookup   ConfigLookup

	fullCache    *cachemanager.InMemoryCacheManager[string, ProjectContext]
	gitCache     *cachemanager.InMemoryCacheManager[string, GitContext]
	trackerCache *cachemanager.InMemoryCacheManager[string, TrackerContext]

	mu     sync.Mutex
	risks  map[string]*riskState   // keyed by project root
	watchers map[string]*watcher.Watcher // keyed by project root
	stopWatch map[string]chan struct{}
}

// New constructs a Scout. vcsFactory and trackerFactory are required;
// configLookup may be nil.
func New(cfg Config, vcsFactory VCSFactory, trackerFactory TrackerFactory, configLookup ConfigLookup) *Scout {
	return &Scout{
		cfg:            cfg,
		vcsFactory:     vcsFactory,
		trackerFactory: trackerFactory,
		configLookup:   configLookup,
		fullCache:      cachemanager.NewInMemoryCacheManager[string, ProjectContext]("scout-full", cfg.CacheTTL, cfg.CacheTTL*2),
		gitCache:       cachemanager.NewInMemoryCacheManager[string, GitContext]("scout-git", cfg.CacheTTL, cfg.CacheTTL*2),
		trackerCache:   cachemanager.NewInMemoryCacheManager[string, TrackerContext]("scout-tracker", cfg.CacheTTL, cfg.CacheTTL*2),
		risks:          make(map[string]*riskState),
		watchers:       make(map[string]*watcher.Watcher),
		stopWatch:      make(map[string]chan struct{}),
	}
}

func (s *Scout) riskFor(root string) *riskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.risks[root]
	if !ok {
		rs = &riskState{}
		s.risks[root] = rs
	}
	return rs
}

// NotifyGitHook records that a git hook fired for root since the last
// snapshot, raising a StaleWithRisk signal on the next classification.
func (s *Scout) NotifyGitHook(root string) {
	s.riskFor(root).raise("git_hook")
}

// WatchRoot starts (idempotently) a debounced fsnotify watcher on root, so
// an out-of-band edit not made through a session's own worktree raises a
// risk signal and invalidates the cached snapshot. Returns an error if the
// watcher cannot be created or started; Close tears down every watcher at
// shutdown.
func (s *Scout) WatchRoot(root string) error {
	s.mu.Lock()
	if _, exists := s.watchers[root]; exists {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	w, err := watcher.New(watcher.DefaultConfig(root))
	if err != nil {
		return fmt.Errorf("watching project root %s: %w", root, err)
	}
	onChange, err := w.Start()
	if err != nil {
		return fmt.Errorf("starting watcher for %s: %w", root, err)
	}

	stop := make(chan struct{})
	s.mu.Lock()
	s.watchers[root] = w
	s.stopWatch[root] = stop
	s.mu.Unlock()

	log.SafeGo("scout-watch-"+root, func() {
		for {
			select {
			case _, ok := <-onChange:
				if !ok {
					return
				}
				s.riskFor(root).raise("out_of_band_edit")
				s.Invalidate(root)
			case <-stop:
				return
			}
		}
	})
	return nil
}

// Close tears down every watcher started via WatchRoot.
func (s *Scout) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for root, w := range s.watchers {
		close(s.stopWatch[root])
		_ = w.Stop()
	}
	s.watchers = make(map[string]*watcher.Watcher)
	s.stopWatch = make(map[string]chan struct{})
}

// Discover produces a full ProjectContext for root/projectID, served from
// the full cache when fresh within cfg.CacheTTL.
func (s *Scout) Discover(ctx context.Context, root, projectID string) (ProjectContext, error) {
	if cached, ok := s.fullCache.GetWithRefresh(ctx, root, s.cfg.IdleTTL); ok {
		cached.Freshness = s.classifyFor(root, cached.DiscoveredAt)
		return cached, nil
	}

	git, err := s.gitStatusUncached(ctx, root)
	if err != nil {
		return ProjectContext{}, fmt.Errorf("discovering git context: %w", err)
	}
	trk := s.trackerStateUncached(ctx, root, projectID)

	cfg := ProjectConfig{ID: projectID}
	if s.configLookup != nil {
		resolved, err := s.configLookup(ctx, projectID)
		if err == nil {
			cfg = resolved
		}
	}

	now := time.Now()
	pc := ProjectContext{
		ID:           root + "@" + fmt.Sprint(now.UnixNano()),
		ProjectRoot:  root,
		DiscoveredAt: now,
		Git:          git,
		Tracker:      trk,
		Config:       cfg,
	}
	pc.Freshness = s.classifyFor(root, now)

	s.fullCache.Set(ctx, root, pc, s.cfg.CacheTTL)
	enforceCapacity[ProjectContext](s.fullCache, FullCacheCapacity)
	return pc, nil
}

// GitStatus produces (or returns the cached) partial GitContext for root.
func (s *Scout) GitStatus(ctx context.Context, root string) (GitContext, error) {
	if cached, ok := s.gitCache.GetWithRefresh(ctx, root, s.cfg.IdleTTL); ok {
		return cached, nil
	}
	git, err := s.gitStatusUncached(ctx, root)
	if err != nil {
		return GitContext{}, err
	}
	s.gitCache.Set(ctx, root, git, s.cfg.CacheTTL)
	enforceCapacity[GitContext](s.gitCache, GitCacheCapacity)
	return git, nil
}

// TrackerState produces (or returns the cached) partial TrackerContext for
// projectID.
func (s *Scout) TrackerState(ctx context.Context, projectID string) TrackerContext {
	if cached, ok := s.trackerCache.GetWithRefresh(ctx, projectID, s.cfg.IdleTTL); ok {
		return cached
	}
	trk := s.trackerStateUncached(ctx, projectID, projectID)
	s.trackerCache.Set(ctx, projectID, trk, s.cfg.CacheTTL)
	enforceCapacity[TrackerContext](s.trackerCache, TrackerCacheCapacity)
	return trk
}

// Invalidate evicts the full and git caches for root (§4.2's invalidate
// operation). Tracker is keyed by project id, not root, and isn't touched.
func (s *Scout) Invalidate(root string) {
	ctx := context.Background()
	_ = s.fullCache.Delete(ctx, root)
	_ = s.gitCache.Delete(ctx, root)
	log.Debug(log.CatScout, "invalidated cached context", "root", root)
}

func (s *Scout) classifyFor(root string, discoveredAt time.Time) ContextFreshness {
	age := time.Since(discoveredAt)
	risk := s.riskFor(root).consume()
	return classify(age, s.cfg.StaleThreshold, risk)
}

func (s *Scout) gitStatusUncached(ctx context.Context, root string) (GitContext, error) {
	provider := s.vcsFactory(root)

	branch, err := provider.CurrentBranch(ctx)
	if err != nil {
		return GitContext{}, fmt.Errorf("current branch: %w", err)
	}
	staged, err := provider.StagedFiles(ctx)
	if err != nil {
		return GitContext{}, fmt.Errorf("staged files: %w", err)
	}
	unstaged, err := provider.UnstagedFiles(ctx)
	if err != nil {
		return GitContext{}, fmt.Errorf("unstaged files: %w", err)
	}
	untracked, err := provider.UntrackedFiles(ctx)
	if err != nil {
		return GitContext{}, fmt.Errorf("untracked files: %w", err)
	}
	stashCount, err := provider.StashCount(ctx)
	if err != nil {
		return GitContext{}, fmt.Errorf("stash count: %w", err)
	}
	repoState, err := provider.RepoState(ctx)
	if err != nil {
		return GitContext{}, fmt.Errorf("repo state: %w", err)
	}
	commits, err := provider.CommitHistory(ctx, s.maxRecentCommits(), branch)
	if err != nil {
		return GitContext{}, fmt.Errorf("commit history: %w", err)
	}

	return GitContext{
		Branch:          branch,
		StagedCount:     len(staged),
		UnstagedCount:   len(unstaged),
		UntrackedCount:  len(untracked),
		StashCount:      stashCount,
		RecentCommits:   commits,
		IsClean:         len(staged) == 0 && len(unstaged) == 0 && len(untracked) == 0,
		RepositoryState: repoState,
	}, nil
}

func (s *Scout) maxRecentCommits() int {
	if s.cfg.MaxRecentCommits <= 0 {
		return 10
	}
	return s.cfg.MaxRecentCommits
}

func (s *Scout) trackerStateUncached(ctx context.Context, riskKey, projectID string) TrackerContext {
	if s.trackerFactory == nil {
		return TrackerContext{Unavailable: true}
	}
	provider, err := s.trackerFactory(ctx, projectID)
	if err != nil {
		log.ErrorErr(log.CatScout, "tracker unavailable", err, "project_id", projectID)
		s.riskFor(riskKey).raise("tracker_unavailable")
		return TrackerContext{Unavailable: true}
	}

	open, errOpen := provider.IssuesByStatus(ctx, "open")
	inProgress, errIP := provider.IssuesByStatus(ctx, "in_progress")
	ready, errReady := provider.ReadyIssues(ctx)
	blocked, errBlocked := provider.BlockedIssues(ctx)
	phase, errPhase := provider.CurrentPhase(ctx, projectID)
	progress, errProgress := provider.Progress(ctx, projectID)

	if errOpen != nil || errIP != nil || errReady != nil || errBlocked != nil || errPhase != nil || errProgress != nil {
		s.riskFor(riskKey).raise("tracker_unavailable")
		return TrackerContext{Unavailable: true}
	}

	return TrackerContext{
		OpenCount:       len(open),
		InProgressCount: len(inProgress),
		ReadyCount:      len(ready),
		BlockedCount:    len(blocked),
		CurrentPhase:    phase,
		ProgressPercent: progress,
	}
}

// capacityBounded is satisfied by every InMemoryCacheManager instantiation
// the scout uses; it's the minimal surface enforceCapacity needs.
type capacityBounded interface {
	ItemCount() int
	EvictOldest() (string, bool)
}

// enforceCapacity evicts the oldest-expiring entries until cache holds at
// most capacity items — go-cache itself has no notion of a maximum size,
// so the scout applies §4.2's fixed capacities (full 10, git 50, tracker
// 20) at this layer.
func enforceCapacity[V any](cache capacityBounded, capacity int) {
	for cache.ItemCount() > capacity {
		if _, ok := cache.EvictOldest(); !ok {
			return
		}
	}
}
