package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/flowctl/flowctl/internal/log"
)

// issueColumns mirrors beads.Client's query style: a fixed column list
// reused by every issue-reading query.
const issueColumns = `id, title, status, priority, issue_type, assignee, created_at, updated_at`

// SQLiteProvider implements Provider against a read-only connection to an
// external tracker database, opened the same way beads.NewClient opens its
// "?mode=ro" connection.
type SQLiteProvider struct {
	db        *sql.DB
	projectID string
}

var _ Provider = (*SQLiteProvider)(nil)

// Open opens a read-only connection to the tracker database at dbPath. The
// tracker database is scoped to a single project (the same convention
// beads.Client follows, one .beads/beads.db per project), so projectID is
// recorded for consistency checks rather than used as a query filter.
func Open(ctx context.Context, dbPath, projectID string) (*SQLiteProvider, error) {
	log.Debug(log.CatTracker, "opening tracker database", "path", dbPath)
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening tracker database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging tracker database: %w", err)
	}
	return &SQLiteProvider{db: db, projectID: projectID}, nil
}

// NewSQLiteProvider wraps an already-open read-only *sql.DB, used by tests
// against an in-memory fixture.
func NewSQLiteProvider(db *sql.DB, projectID string) *SQLiteProvider {
	return &SQLiteProvider{db: db, projectID: projectID}
}

func (p *SQLiteProvider) Close() error { return p.db.Close() }

func scanIssueRow(scanner interface{ Scan(...any) error }) (IssueSummary, error) {
	var (
		issue     IssueSummary
		assignee  sql.NullString
		createdAt string
		updatedAt string
	)
	err := scanner.Scan(&issue.ID, &issue.Title, &issue.Status, &issue.Priority, &issue.IssueType, &assignee, &createdAt, &updatedAt)
	if err != nil {
		return IssueSummary{}, err
	}
	if assignee.Valid {
		issue.Assignee = assignee.String
	}
	issue.CreatedAt = parseSQLiteTime(createdAt)
	issue.UpdatedAt = parseSQLiteTime(updatedAt)
	return issue, nil
}

// parseSQLiteTime parses the TEXT timestamp format SQLite's CURRENT_TIMESTAMP
// default produces ("2006-01-02 15:04:05"). An unparseable value (shouldn't
// happen against a schema this package controls in tests, but tracker
// databases are external) degrades to the zero time rather than erroring the
// whole query.
func parseSQLiteTime(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func (p *SQLiteProvider) queryIssues(ctx context.Context, query string, args ...any) ([]IssueSummary, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []IssueSummary
	for rows.Next() {
		issue, err := scanIssueRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning issue row: %w", err)
		}
		labels, err := p.labelsFor(ctx, issue.ID)
		if err != nil {
			return nil, err
		}
		issue.Labels = labels
		blockedBy, err := p.blockersFor(ctx, issue.ID)
		if err != nil {
			return nil, err
		}
		issue.BlockedBy = blockedBy
		out = append(out, issue)
	}
	return out, rows.Err()
}

func (p *SQLiteProvider) labelsFor(ctx context.Context, issueID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT label FROM labels WHERE issue_id = ?`, issueID)
	if err != nil {
		return nil, fmt.Errorf("querying labels for %s: %w", issueID, err)
	}
	defer func() { _ = rows.Close() }()

	var labels []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, fmt.Errorf("scanning label for %s: %w", issueID, err)
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

func (p *SQLiteProvider) blockersFor(ctx context.Context, issueID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT depends_on_id FROM dependencies WHERE issue_id = ? AND type = 'blocks'`, issueID)
	if err != nil {
		return nil, fmt.Errorf("querying dependencies for %s: %w", issueID, err)
	}
	defer func() { _ = rows.Close() }()

	var blockers []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scanning dependency for %s: %w", issueID, err)
		}
		blockers = append(blockers, d)
	}
	return blockers, rows.Err()
}

// IssuesByStatus returns every non-deleted issue in the given status.
func (p *SQLiteProvider) IssuesByStatus(ctx context.Context, status string) ([]IssueSummary, error) {
	return p.queryIssues(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE status = ? AND deleted_at IS NULL ORDER BY created_at ASC`,
		status,
	)
}

// ReadyIssues returns open or in-progress issues absent from the
// blocked-issue cache, per the ready_issues view's semantics (§6.3).
func (p *SQLiteProvider) ReadyIssues(ctx context.Context) ([]IssueSummary, error) {
	return p.queryIssues(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id IN (SELECT id FROM ready_issues) AND deleted_at IS NULL ORDER BY created_at ASC`,
	)
}

// BlockedIssues returns open/in-progress issues present in the tracker's
// blocked-issue cache.
func (p *SQLiteProvider) BlockedIssues(ctx context.Context) ([]IssueSummary, error) {
	return p.queryIssues(ctx,
		`SELECT `+issueColumns+` FROM issues
			WHERE status IN ('open', 'in_progress')
			AND id IN (SELECT issue_id FROM blocked_issues_cache)
			AND deleted_at IS NULL
			ORDER BY created_at ASC`,
	)
}

// CurrentPhase returns the earliest not-yet-closed phase, or nil if none.
func (p *SQLiteProvider) CurrentPhase(ctx context.Context, projectID string) (*PhaseSummary, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, name, status, position FROM phases WHERE status != 'closed' ORDER BY position ASC LIMIT 1`,
	)
	var ph PhaseSummary
	err := row.Scan(&ph.ID, &ph.Name, &ph.Status, &ph.Position)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying current phase: %w", err)
	}
	return &ph, nil
}

// Progress returns the fraction of non-deleted issues in status 'closed'.
func (p *SQLiteProvider) Progress(ctx context.Context, projectID string) (float64, error) {
	var total, closed int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE deleted_at IS NULL`).Scan(&total); err != nil {
		return 0, fmt.Errorf("counting issues: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE deleted_at IS NULL AND status = 'closed'`).Scan(&closed); err != nil {
		return 0, fmt.Errorf("counting closed issues: %w", err)
	}
	return float64(closed) / float64(total), nil
}
