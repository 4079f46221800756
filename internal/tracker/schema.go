package tracker

// Schema is the read-only tracker schema this provider queries against,
// supplementing the teacher's testutil.Schema (issues/labels/dependencies/
// blocked_issues_cache/ready_issues) with a phases table — the tracker has
// no phase concept in the teacher repo, added here because a Phase is a
// first-class read-only entity in this core.
const Schema = `
CREATE TABLE issues (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'open',
	priority    INTEGER NOT NULL DEFAULT 2,
	issue_type  TEXT NOT NULL DEFAULT 'task',
	assignee    TEXT,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	closed_at   DATETIME,
	deleted_at  DATETIME
);

CREATE TABLE labels (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	issue_id TEXT NOT NULL,
	label    TEXT NOT NULL,
	FOREIGN KEY (issue_id) REFERENCES issues(id)
);

CREATE TABLE dependencies (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	issue_id      TEXT NOT NULL,
	depends_on_id TEXT NOT NULL,
	type          TEXT NOT NULL DEFAULT 'blocks',
	FOREIGN KEY (issue_id) REFERENCES issues(id),
	FOREIGN KEY (depends_on_id) REFERENCES issues(id)
);

CREATE TABLE blocked_issues_cache (
	issue_id TEXT PRIMARY KEY
);

CREATE VIEW ready_issues AS
SELECT i.id
FROM issues i
WHERE i.status IN ('open', 'in_progress')
  AND i.id NOT IN (SELECT issue_id FROM blocked_issues_cache);

CREATE TABLE phases (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL,
	status   TEXT NOT NULL DEFAULT 'open',
	position INTEGER NOT NULL
);
`
