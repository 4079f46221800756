package tracker

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func newFixtureProvider(t *testing.T) *SQLiteProvider {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	_, err = db.Exec(Schema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	seed := []string{
		`INSERT INTO issues (id, title, status, priority, issue_type, assignee) VALUES
			('T-1', 'Add retry logic', 'open', 1, 'task', 'alice'),
			('T-2', 'Write docs', 'in_progress', 2, 'task', 'bob'),
			('T-3', 'Fix flaky test', 'closed', 1, 'bug', 'alice'),
			('T-4', 'Ship v2 API', 'open', 0, 'feature', '')`,
		`INSERT INTO dependencies (issue_id, depends_on_id, type) VALUES ('T-4', 'T-1', 'blocks')`,
		`INSERT INTO blocked_issues_cache (issue_id) VALUES ('T-4')`,
		`INSERT INTO labels (issue_id, label) VALUES ('T-1', 'backend'), ('T-1', 'urgent')`,
		`INSERT INTO phases (id, name, status, position) VALUES
			('P-1', 'Foundations', 'closed', 0),
			('P-2', 'Core loop', 'open', 1),
			('P-3', 'Polish', 'open', 2)`,
	}
	for _, stmt := range seed {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	return NewSQLiteProvider(db, "proj-1")
}

func TestSQLiteProvider_IssuesByStatus(t *testing.T) {
	p := newFixtureProvider(t)
	issues, err := p.IssuesByStatus(context.Background(), "open")
	require.NoError(t, err)
	require.Len(t, issues, 2)
	require.ElementsMatch(t, []string{"T-1", "T-4"}, []string{issues[0].ID, issues[1].ID})
}

func TestSQLiteProvider_IssuesByStatusIncludesLabelsAndBlockers(t *testing.T) {
	p := newFixtureProvider(t)
	issues, err := p.IssuesByStatus(context.Background(), "open")
	require.NoError(t, err)

	var t1 *IssueSummary
	for i := range issues {
		if issues[i].ID == "T-1" {
			t1 = &issues[i]
		}
	}
	require.NotNil(t, t1)
	require.ElementsMatch(t, []string{"backend", "urgent"}, t1.Labels)
}

func TestSQLiteProvider_ReadyIssuesExcludesBlocked(t *testing.T) {
	p := newFixtureProvider(t)
	ready, err := p.ReadyIssues(context.Background())
	require.NoError(t, err)

	var ids []string
	for _, i := range ready {
		ids = append(ids, i.ID)
	}
	require.NotContains(t, ids, "T-4") // blocked
	require.Contains(t, ids, "T-1")
	require.Contains(t, ids, "T-2")
}

func TestSQLiteProvider_BlockedIssues(t *testing.T) {
	p := newFixtureProvider(t)
	blocked, err := p.BlockedIssues(context.Background())
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	require.Equal(t, "T-4", blocked[0].ID)
	require.Equal(t, []string{"T-1"}, blocked[0].BlockedBy)
}

func TestSQLiteProvider_CurrentPhaseSkipsClosed(t *testing.T) {
	p := newFixtureProvider(t)
	phase, err := p.CurrentPhase(context.Background(), "proj-1")
	require.NoError(t, err)
	require.NotNil(t, phase)
	require.Equal(t, "P-2", phase.ID)
}

func TestSQLiteProvider_ProgressFraction(t *testing.T) {
	p := newFixtureProvider(t)
	progress, err := p.Progress(context.Background(), "proj-1")
	require.NoError(t, err)
	require.InDelta(t, 0.25, progress, 0.0001) // 1 of 4 issues closed
}

func TestSQLiteProvider_CurrentPhaseNoneOpen(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(Schema)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO phases (id, name, status, position) VALUES ('P-1', 'Done', 'closed', 0)`)
	require.NoError(t, err)

	p := NewSQLiteProvider(db, "proj-1")
	phase, err := p.CurrentPhase(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Nil(t, phase)
}
