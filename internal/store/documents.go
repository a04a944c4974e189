package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document is an uploaded file whose text was ingested into a conversation.
type Document struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Name           string    `json:"name"`
	Content        string    `json:"-"`
	Chunks         int       `json:"chunks"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Chunk is one indexed slice of a document.
type Chunk struct {
	ID             string  `json:"id"`
	DocumentID     string  `json:"documentId"`
	ConversationID string  `json:"conversationId"`
	Seq            int     `json:"seq"`
	Content        string  `json:"content"`
	Rank           float64 `json:"rank,omitempty"` // FTS5 rank score (search results only)
}

// DocumentStore keeps uploaded documents and their chunks, searchable via
// SQLite FTS5. Every query is scoped to one conversation.
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a document store using the given database.
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Add stores a document and its chunks in one transaction.
func (d *DocumentStore) Add(ctx context.Context, doc Document, chunks []string) (*Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.CreatedAt = time.Now()
	doc.Chunks = len(chunks)

	tx, err := d.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin document: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO documents (id, conversation_id, name, content, created_at) VALUES (?, ?, ?, ?, ?)",
		doc.ID, doc.ConversationID, doc.Name, doc.Content, doc.CreatedAt.Format(time.DateTime),
	); err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}

	for i, c := range chunks {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO document_chunks (id, document_id, conversation_id, seq, content) VALUES (?, ?, ?, ?, ?)",
			uuid.New().String(), doc.ID, doc.ConversationID, i, c,
		); err != nil {
			return nil, fmt.Errorf("inserting chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit document: %w", err)
	}

	d.db.log.Debug().
		Str("conversation", doc.ConversationID).
		Str("document", doc.Name).
		Int("chunks", len(chunks)).
		Msg("document stored")
	return &doc, nil
}

// Search returns the chunks of a conversation that best match the free-text
// query, ranked by relevance. Limit of 0 defaults to 5.
func (d *DocumentStore) Search(ctx context.Context, conversationID, query string, limit int) ([]Chunk, error) {
	if limit <= 0 {
		limit = 5
	}
	match := MatchQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := d.db.sql.QueryContext(ctx,
		`SELECT dc.id, dc.document_id, dc.conversation_id, dc.seq, dc.content, rank
		 FROM chunks_fts
		 JOIN document_chunks dc ON dc.rowid = chunks_fts.rowid
		 WHERE chunks_fts MATCH ?
		   AND dc.conversation_id = ?
		 ORDER BY rank
		 LIMIT ?`,
		match, conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ConversationID, &c.Seq, &c.Content, &c.Rank); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// List returns the documents of a conversation in upload order.
func (d *DocumentStore) List(ctx context.Context, conversationID string) ([]Document, error) {
	rows, err := d.db.sql.QueryContext(ctx,
		`SELECT d.id, d.conversation_id, d.name, d.content, d.created_at,
		        (SELECT COUNT(*) FROM document_chunks dc WHERE dc.document_id = d.id)
		 FROM documents d
		 WHERE d.conversation_id = ?
		 ORDER BY d.created_at, d.rowid`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var doc Document
		var created string
		if err := rows.Scan(&doc.ID, &doc.ConversationID, &doc.Name, &doc.Content, &created, &doc.Chunks); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		doc.CreatedAt, _ = time.Parse(time.DateTime, created)
		out = append(out, doc)
	}
	return out, rows.Err()
}

// RawText concatenates the full text of every document in a conversation.
func (d *DocumentStore) RawText(ctx context.Context, conversationID string) (string, error) {
	docs, err := d.List(ctx, conversationID)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, doc.Content)
	}
	return strings.Join(parts, "\n\n"), nil
}

// DeleteConversation removes every document of a conversation.
func (d *DocumentStore) DeleteConversation(ctx context.Context, conversationID string) error {
	tx, err := d.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM document_chunks WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	return tx.Commit()
}

var matchTokenRe = regexp.MustCompile(`[\p{L}\p{N}]{2,}`)

// MatchQuery turns free text into an FTS5 query that matches any of its
// words. Each word is quoted so FTS5 operators in user input are inert.
func MatchQuery(text string) string {
	seen := make(map[string]bool)
	var terms []string
	for _, w := range matchTokenRe.FindAllString(strings.ToLower(text), -1) {
		if seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}
