package store

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/clinicbot/internal/domain"
)

// TranscriptStore records the chat history of each conversation so it can be
// restored after a restart.
type TranscriptStore struct {
	db *DB
}

// NewTranscriptStore creates a transcript store using the given database.
func NewTranscriptStore(db *DB) *TranscriptStore {
	return &TranscriptStore{db: db}
}

// Append adds a message to a conversation, creating the conversation on
// first use.
func (s *TranscriptStore) Append(ctx context.Context, conversationID, channel string, msg domain.Message) error {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	stamp := ts.Format(time.DateTime)

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, channel, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		conversationID, channel, stamp, stamp,
	); err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO messages (conversation_id, role, content, timestamp) VALUES (?, ?, ?, ?)",
		conversationID, msg.Role, msg.Content, stamp,
	); err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	return tx.Commit()
}

// History returns the most recent messages of a conversation in
// chronological order. A limit of zero or less returns everything.
func (s *TranscriptStore) History(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	query := `SELECT role, content, timestamp FROM messages
		WHERE conversation_id = ? ORDER BY id DESC`
	args := []any{conversationID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		var ts string
		if err := rows.Scan(&m.Role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Timestamp, _ = time.Parse(time.DateTime, ts)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Clear deletes a conversation and its messages.
func (s *TranscriptStore) Clear(ctx context.Context, conversationID string) error {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("clearing messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", conversationID); err != nil {
		return fmt.Errorf("clearing conversation: %w", err)
	}
	return tx.Commit()
}

// List returns conversations ordered by most recently updated.
func (s *TranscriptStore) List(ctx context.Context, limit int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT c.id, c.channel, c.created_at, c.updated_at,
		        (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		 FROM conversations c
		 ORDER BY c.updated_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		var created, updated string
		if err := rows.Scan(&c.ID, &c.Channel, &created, &updated, &c.Messages); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		c.CreatedAt, _ = time.Parse(time.DateTime, created)
		c.UpdatedAt, _ = time.Parse(time.DateTime, updated)
		out = append(out, c)
	}
	return out, rows.Err()
}
