package session

import (
	"context"
	"time"

	"github.com/flowctl/flowctl/internal/log"
	"github.com/flowctl/flowctl/internal/workflow"
)

// RunScanners launches the timeout and abandonment background scanners
// (§4.7) and returns a stop function. Both scanners share cfg.ScanInterval;
// a real deployment could split them, but the spec gives both a single
// "period configurable, default 60s" knob.
func (m *Manager) RunScanners(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(m.cfg.ScanInterval)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.scanTimeouts(ctx)
				m.scanAbandoned(ctx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// scanTimeouts touches every active session and emits TimeoutDetected for
// any whose last_activity_at has aged past SessionTimeout.
func (m *Manager) scanTimeouts(ctx context.Context) {
	active, err := m.engine.ActiveSessions(ctx)
	if err != nil {
		log.ErrorErr(log.CatSession, "timeout scan: listing active sessions failed", err)
		return
	}

	now := m.clock()
	for _, s := range active {
		if s.CurrentState.IsTerminal() {
			continue
		}
		idle := now.Sub(s.LastActivityAt)
		if idle < m.cfg.SessionTimeout {
			continue
		}
		deadline := s.LastActivityAt.Add(m.cfg.SessionTimeout)
		unlock := m.Lock(s.ID)
		_, err := m.engine.Transition(ctx, s.ID, workflow.TimeoutDetected(deadline), nil)
		unlock()
		if err != nil {
			log.ErrorErr(log.CatSession, "timeout scan: transition failed", err, "session_id", s.ID.String())
			continue
		}
		log.Info(log.CatSession, "session timed out", "session_id", s.ID.String(), "idle", idle.String())
	}
}

// scanAbandoned emits MarkAbandoned for every Suspended session idle beyond
// AbandonmentDays.
func (m *Manager) scanAbandoned(ctx context.Context) {
	active, err := m.engine.ActiveSessions(ctx)
	if err != nil {
		log.ErrorErr(log.CatSession, "abandonment scan: listing active sessions failed", err)
		return
	}

	now := m.clock()
	threshold := time.Duration(m.cfg.AbandonmentDays) * 24 * time.Hour
	for _, s := range active {
		if s.CurrentState.Tag != workflow.StateSuspended {
			continue
		}
		idle := now.Sub(s.LastActivityAt)
		if idle < threshold {
			continue
		}
		days := int(idle.Hours() / 24)
		unlock := m.Lock(s.ID)
		_, err := m.engine.Transition(ctx, s.ID, workflow.MarkAbandoned(days), nil)
		unlock()
		if err != nil {
			log.ErrorErr(log.CatSession, "abandonment scan: transition failed", err, "session_id", s.ID.String())
			continue
		}
		log.Info(log.CatSession, "session marked abandoned", "session_id", s.ID.String(), "days_inactive", days)
	}
}
