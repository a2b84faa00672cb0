package sqlstore

// dialect holds the statements that differ between SQLite and the MySQL
// protocol (MySQL, Dolt embedded and Dolt sql-server).
type dialect struct {
	name       string
	schema     []string
	upsertRow  string
	upsertMeta string
	versioned  bool
}

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS bug_tasks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project TEXT NOT NULL,
    bug_id INTEGER NOT NULL,
    target TEXT NOT NULL,
    milestone TEXT,
    status TEXT NOT NULL,
    importance TEXT NOT NULL,
    assignee TEXT,
    UNIQUE (bug_id, target)
)`,
		`CREATE INDEX IF NOT EXISTS idx_bug_tasks_filter
    ON bug_tasks (project, bug_id, target, milestone, status, importance, assignee)`,
		`CREATE TABLE IF NOT EXISTS meta (
    name TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`,
	},
	upsertRow: `INSERT INTO bug_tasks (project, bug_id, target, milestone, status, importance, assignee)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (bug_id, target) DO UPDATE SET
    project = excluded.project,
    milestone = excluded.milestone,
    status = excluded.status,
    importance = excluded.importance,
    assignee = excluded.assignee`,
	upsertMeta: `INSERT INTO meta (name, value) VALUES (?, ?)
ON CONFLICT (name) DO UPDATE SET value = excluded.value`,
}

// Column widths keep the composite index under the InnoDB key size limit.
var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS bug_tasks (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    project VARCHAR(64) NOT NULL,
    bug_id BIGINT NOT NULL,
    target VARCHAR(128) NOT NULL,
    milestone VARCHAR(64),
    status VARCHAR(32) NOT NULL,
    importance VARCHAR(32) NOT NULL,
    assignee VARCHAR(64),
    UNIQUE KEY uq_bug_tasks_bug_target (bug_id, target),
    INDEX idx_bug_tasks_filter (project, bug_id, target, milestone, status, importance, assignee)
)`,
		`CREATE TABLE IF NOT EXISTS meta (
    name VARCHAR(128) PRIMARY KEY,
    value TEXT NOT NULL
)`,
	},
	upsertRow: `INSERT INTO bug_tasks (project, bug_id, target, milestone, status, importance, assignee)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    project = VALUES(project),
    milestone = VALUES(milestone),
    status = VALUES(status),
    importance = VALUES(importance),
    assignee = VALUES(assignee)`,
	upsertMeta: `INSERT INTO meta (name, value) VALUES (?, ?)
ON DUPLICATE KEY UPDATE value = VALUES(value)`,
}

var doltDialect = func() dialect {
	d := mysqlDialect
	d.name = "dolt"
	d.versioned = true
	return d
}()
