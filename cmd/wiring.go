package cmd

import (
	"context"
	"fmt"

	"github.com/flowctl/flowctl/internal/config"
	"github.com/flowctl/flowctl/internal/eventbus"
	"github.com/flowctl/flowctl/internal/log"
	"github.com/flowctl/flowctl/internal/orchestrator"
	"github.com/flowctl/flowctl/internal/policy"
	"github.com/flowctl/flowctl/internal/scout"
	"github.com/flowctl/flowctl/internal/session"
	"github.com/flowctl/flowctl/internal/store"
	"github.com/flowctl/flowctl/internal/tracker"
	"github.com/flowctl/flowctl/internal/vcs"
	"github.com/flowctl/flowctl/internal/workflow"
)

// app is the fully wired composition root for one invocation of the
// workflow command, mirroring the teacher's createDaemonControlPlane: one
// function assembling every port and sub-component behind the Orchestrator,
// with a single Close to tear them back down.
type app struct {
	orch  *orchestrator.Orchestrator
	sess  *session.Manager
	sct   *scout.Scout
	db    *store.SQLiteStore
	stop  func()
}

func (a *app) Close() {
	if a.stop != nil {
		a.stop()
	}
	a.sct.Close()
	_ = a.db.Close()
}

// newApp builds the composition root from cfg, rooted at projectRoot for
// VCS and tracker resolution.
func newApp(ctx context.Context, cfg config.Config, projectRoot string) (*app, error) {
	sqlDB, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening workflow database: %w", err)
	}
	db := store.NewSQLiteStore(sqlDB)

	engine := workflow.NewEngine(db)
	sessions := session.New(cfg.SessionConfig(), engine)

	vcsFactory := func(root string) vcs.Provider { return vcs.NewRealExecutor(root) }
	trackerFactory := func(ctx context.Context, projectID string) (tracker.Provider, error) {
		// One tracker database per project root, the same .<tool>/<tool>.db
		// convention the teacher's beads.Client follows for its own
		// database file.
		return tracker.Open(ctx, projectRoot+"/.flowctl/tracker.db", projectID)
	}

	sct := scout.New(cfg.ScoutConfig(), vcsFactory, trackerFactory, nil)

	runner := policy.NewCommandRunner()
	builtins, err := policy.NewBuiltins(cfg.Policies.Config, runner, projectRoot)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("constructing policies: %w", err)
	}
	guard := policy.NewGuardProvider(builtins, cfg.Policies.FailFast)

	bus := eventbus.New(cfg.Orchestrator.EventChannelCapacity)

	orch := orchestrator.New(
		orchestrator.Config{},
		engine,
		db,
		db,
		guard,
		sct,
		bus,
		db,
		vcsFactory,
		sessions,
	)

	stop := sessions.RunScanners(context.Background())

	log.Info(log.CatOrchestrator, "workflow core wired", "db_path", cfg.DatabasePath, "project_root", projectRoot)

	return &app{orch: orch, sess: sessions, sct: sct, db: db, stop: stop}, nil
}
