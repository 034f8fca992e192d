package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS watched_folders (
	account_id TEXT NOT NULL,
	path       TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	type       TEXT NOT NULL DEFAULT 'other',
	favorite   INTEGER NOT NULL DEFAULT 0 CHECK(favorite IN (0, 1)),
	added_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (account_id, path)
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_log (
	id          TEXT PRIMARY KEY,
	event       TEXT NOT NULL,
	account_id  TEXT NOT NULL DEFAULT '',
	folder_path TEXT NOT NULL DEFAULT '',
	subject     TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notification_log_created
	ON notification_log(created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_notification_log_event
	ON notification_log(event, created_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
