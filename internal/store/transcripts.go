package store

import (
	"fmt"
	"time"

	"github.com/castaldi/frank/internal/domain"
)

// Transcripts stores conversation history. The router's classification
// and responder context is built from it.
type Transcripts struct {
	db *DB
}

func NewTranscripts(db *DB) *Transcripts {
	return &Transcripts{db: db}
}

// Append records one turn.
func (t *Transcripts) Append(conversationID, role, text string) error {
	_, err := t.db.sql.Exec(
		"INSERT INTO transcripts (conversation_id, role, text) VALUES (?, ?, ?)",
		conversationID, role, text,
	)
	if err != nil {
		return fmt.Errorf("appending transcript turn: %w", err)
	}
	return nil
}

// Recent returns the last limit turns of a conversation, oldest first.
func (t *Transcripts) Recent(conversationID string, limit int) ([]domain.Turn, error) {
	rows, err := t.db.sql.Query(`
		SELECT role, text, created_at FROM (
			SELECT id, role, text, created_at
			FROM transcripts
			WHERE conversation_id = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("loading transcript: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var turn domain.Turn
		var createdAt string
		if err := rows.Scan(&turn.Role, &turn.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning transcript row: %w", err)
		}
		if ts, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
			turn.Timestamp = ts
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// Context builds the prior-turn snapshot handed to classification calls.
func (t *Transcripts) Context(conversationID string, limit int) (*domain.Context, error) {
	turns, err := t.Recent(conversationID, limit)
	if err != nil {
		return nil, err
	}
	return &domain.Context{ConversationID: conversationID, PriorTurns: turns}, nil
}

// Clear removes the whole history of a conversation.
func (t *Transcripts) Clear(conversationID string) error {
	_, err := t.db.sql.Exec("DELETE FROM transcripts WHERE conversation_id = ?", conversationID)
	if err != nil {
		return fmt.Errorf("clearing transcript: %w", err)
	}
	return nil
}
