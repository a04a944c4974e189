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
		Name:    "create customers and bookings",
		SQL: `
			CREATE TABLE customers (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				name        TEXT NOT NULL,
				email       TEXT NOT NULL,
				phone       TEXT NOT NULL,
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE UNIQUE INDEX idx_customers_email ON customers (email);

			CREATE TABLE bookings (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				customer_id   INTEGER NOT NULL REFERENCES customers(id),
				booking_type  TEXT NOT NULL,
				date          TEXT NOT NULL,
				time          TEXT NOT NULL,
				status        TEXT NOT NULL DEFAULT 'confirmed',
				created_at    TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_bookings_customer ON bookings (customer_id);
			CREATE INDEX idx_bookings_date ON bookings (date);
			CREATE INDEX idx_bookings_created ON bookings (created_at);
		`,
	},
	{
		Version: 2,
		Name:    "create documents and chunks with FTS5",
		SQL: `
			CREATE TABLE documents (
				id               TEXT PRIMARY KEY,
				conversation_id  TEXT NOT NULL,
				name             TEXT NOT NULL,
				content          TEXT NOT NULL,
				created_at       TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_documents_conversation ON documents (conversation_id);

			CREATE TABLE document_chunks (
				id               TEXT PRIMARY KEY,
				document_id      TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
				conversation_id  TEXT NOT NULL,
				seq              INTEGER NOT NULL,
				content          TEXT NOT NULL
			);

			CREATE INDEX idx_chunks_conversation ON document_chunks (conversation_id);

			CREATE VIRTUAL TABLE chunks_fts USING fts5(
				content,
				content='document_chunks',
				content_rowid='rowid'
			);

			CREATE TRIGGER chunks_ai AFTER INSERT ON document_chunks BEGIN
				INSERT INTO chunks_fts(rowid, content) VALUES (new.rowid, new.content);
			END;

			CREATE TRIGGER chunks_ad AFTER DELETE ON document_chunks BEGIN
				INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
			END;
		`,
	},
	{
		Version: 3,
		Name:    "create conversation transcripts",
		SQL: `
			CREATE TABLE conversations (
				id          TEXT PRIMARY KEY,
				channel     TEXT NOT NULL DEFAULT '',
				created_at  TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE TABLE messages (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id  TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				role             TEXT NOT NULL,
				content          TEXT NOT NULL,
				timestamp        TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_messages_conversation ON messages (conversation_id, id);
		`,
	},
}
