// Package session implements the Session Manager (C9): per-session
// concurrency control, the global session cap, idle-timeout detection, and
// abandonment scanning of spec.md §4.7.
//
// Grounded on the teacher's controlplane.inMemoryRegistry for the
// map-of-entities-guarded-by-one-mutex shape (here holding per-session
// *sync.Mutex values instead of the entities themselves, since ownership of
// the entities is internal/store's job, not this package's) and on
// controlplane.SupervisorConfig's background-scanner pattern, generalized
// from a single HealthMonitor ticker to the two independent scanners §4.7
// names (timeout, abandonment).
package session

import (
	"context"
	"sync"
	"time"

	"github.com/flowctl/flowctl/internal/ids"
	"github.com/flowctl/flowctl/internal/log"
	"github.com/flowctl/flowctl/internal/workflow"
)

// Config holds the Session Manager's knobs (§6.2 orchestrator.* keys).
type Config struct {
	// MaxSessions is the global concurrent-session cap.
	MaxSessions int
	// SessionTimeout marks a session idle once last_activity_at is older
	// than this.
	SessionTimeout time.Duration
	// ScanInterval is how often the background scanners run (default 60s).
	ScanInterval time.Duration
	// AbandonmentDays is how long a Suspended session may sit idle before
	// the abandonment scanner marks it Abandoned.
	AbandonmentDays int
}

// DefaultConfig returns §6.2's documented orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		MaxSessions:     10,
		SessionTimeout:  time.Hour,
		ScanInterval:    60 * time.Second,
		AbandonmentDays: 14,
	}
}

// MaxSessionsReachedError reports that CreateSession was rejected because
// the global cap is already at capacity; no row is written (§8 boundary
// behavior).
type MaxSessionsReachedError struct {
	Max int
}

func (e *MaxSessionsReachedError) Error() string {
	return "max_sessions reached: at capacity"
}

// DuplicateActiveTaskError reports that CreateSession was rejected because
// task_id already has a non-terminal session (invariant 1, §6.3's "Unique
// index on task_id filtered to non-terminal rows"); no row is written.
type DuplicateActiveTaskError struct {
	TaskID string
}

func (e *DuplicateActiveTaskError) Error() string {
	return "task " + e.TaskID + " already has an active session"
}

// Manager is the C9 Session Manager: it wraps the Workflow Engine's session
// creation with the cap check, owns the per-session write lock the
// orchestrator's guarded transition uses, and drives the two background
// scanners of §4.7.
type Manager struct {
	cfg    Config
	engine *workflow.Engine
	clock  func() time.Time

	locks *keyedMutex
}

// New constructs a Manager over engine.
func New(cfg Config, engine *workflow.Engine) *Manager {
	return &Manager{cfg: cfg, engine: engine, clock: time.Now, locks: newKeyedMutex()}
}

// WithClock overrides the manager's time source, for deterministic scanner
// tests.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// CreateSession enforces the max_sessions cap and the one-active-session-
// per-task invariant (§4.7, invariant 1) before delegating to the engine.
// The check-then-create sequence below is not atomic against a concurrent
// CreateSession from another caller; the Database Provider's partial
// unique index on task_id (§6.3) is what makes the invariant exact under
// concurrent bursts, and this check exists to reject the same case with a
// typed error instead of a raw constraint-violation one for the sequential
// path every CLI-driven call in this core actually exercises.
func (m *Manager) CreateSession(ctx context.Context, projectID, taskID, operatorID string, plan workflow.CompensationPlan) (*workflow.Session, error) {
	active, err := m.engine.ActiveSessions(ctx)
	if err != nil {
		return nil, err
	}
	if m.cfg.MaxSessions > 0 && len(active) >= m.cfg.MaxSessions {
		log.Warn(log.CatSession, "max sessions reached", "max", m.cfg.MaxSessions)
		return nil, &MaxSessionsReachedError{Max: m.cfg.MaxSessions}
	}
	for _, s := range active {
		if s.TaskID == taskID {
			log.Warn(log.CatSession, "task already has an active session", "task_id", taskID)
			return nil, &DuplicateActiveTaskError{TaskID: taskID}
		}
	}
	session, err := m.engine.CreateSession(ctx, projectID, taskID, operatorID, plan)
	if err != nil {
		if workflow.IsDuplicateTaskConstraint(err) {
			return nil, &DuplicateActiveTaskError{TaskID: taskID}
		}
		return nil, err
	}
	return session, nil
}

// Lock acquires the exclusive per-session write lock and returns a function
// that releases it.
func (m *Manager) Lock(id ids.SessionID) func() {
	return m.locks.Lock(id)
}

// keyedMutex grants one exclusive lock per session id. Mirrors the shape
// that used to live inline in internal/orchestrator; it now lives here
// since lock ownership is a Session Manager responsibility per §4.7, and
// the orchestrator holds a *Manager rather than building its own.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[ids.SessionID]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[ids.SessionID]*sync.Mutex)}
}

func (k *keyedMutex) entry(id ids.SessionID) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[id]
	if !ok {
		l = &sync.Mutex{}
		k.locks[id] = l
	}
	return l
}

func (k *keyedMutex) Lock(id ids.SessionID) func() {
	l := k.entry(id)
	l.Lock()
	return l.Unlock
}
