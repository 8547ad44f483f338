package store

// SchemaVersion is the current on-disk schema generation, recorded in the
// schema_version table on init.
const SchemaVersion = 1

// CoreSchema creates the memories table and its indexes. Trigrams are never
// persisted as a column (recomputed from content_normalized on load, per
// invariant 5); tags, superseded_ids, and linked_node_ids are stored as
// JSON-array TEXT columns, following the teacher's tags-as-JSON convention.
const CoreSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	content_normalized TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	embedding BLOB,
	created_at TIMESTAMP NOT NULL,
	last_accessed_at TIMESTAMP NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	base_strength REAL NOT NULL DEFAULT 1.0,
	decay_rate REAL NOT NULL DEFAULT 0.1,
	importance REAL NOT NULL DEFAULT 0.5,
	is_pinned INTEGER NOT NULL DEFAULT 0,
	expires_at TIMESTAMP,
	is_archived INTEGER NOT NULL DEFAULT 0,
	superseded_by TEXT,
	superseded_ids TEXT NOT NULL DEFAULT '[]',
	valid_from TIMESTAMP NOT NULL,
	valid_until TIMESTAMP,
	linked_node_ids TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_memories_current
	ON memories(valid_until, is_archived);
CREATE INDEX IF NOT EXISTS idx_memories_last_accessed
	ON memories(last_accessed_at);
CREATE INDEX IF NOT EXISTS idx_memories_superseded_by
	ON memories(superseded_by);
CREATE INDEX IF NOT EXISTS idx_memories_expires_at
	ON memories(expires_at);
`
