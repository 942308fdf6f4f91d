package store

// Migration is one schema change, applied in version order.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []Migration{
	{
		Version: 1,
		Name:    "transcripts",
		SQL: `
			CREATE TABLE transcripts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id TEXT NOT NULL,
				role TEXT NOT NULL,
				text TEXT NOT NULL,
				created_at TEXT NOT NULL DEFAULT (datetime('now'))
			);
			CREATE INDEX idx_transcripts_conversation
				ON transcripts(conversation_id, id);
		`,
	},
	{
		Version: 2,
		Name:    "event_log",
		SQL: `
			CREATE TABLE event_log (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				conversation_id TEXT NOT NULL,
				tool_name TEXT NOT NULL,
				payload TEXT,
				created_at TEXT NOT NULL DEFAULT (datetime('now'))
			);
			CREATE INDEX idx_event_log_conversation
				ON event_log(conversation_id, id);
		`,
	},
}
