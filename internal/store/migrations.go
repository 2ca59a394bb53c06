package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create settings document",
		SQL: `
			CREATE TABLE settings (
				id          INTEGER PRIMARY KEY CHECK (id = 1),
				document    TEXT NOT NULL,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
	{
		Version: 2,
		Name:    "create chat archive",
		SQL: `
			CREATE TABLE chat_sessions (
				id           TEXT PRIMARY KEY,
				provider     TEXT NOT NULL,
				fingerprint  TEXT NOT NULL,
				created_at   TEXT NOT NULL,
				destroyed_at TEXT
			);

			CREATE INDEX idx_chat_sessions_provider ON chat_sessions (provider);

			CREATE TABLE chat_turns (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id  TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
				role        TEXT NOT NULL,
				content     TEXT NOT NULL,
				media_mime  TEXT NOT NULL DEFAULT '',
				timestamp   TEXT NOT NULL
			);

			CREATE INDEX idx_chat_turns_session ON chat_turns (session_id, id);
		`,
	},
}
