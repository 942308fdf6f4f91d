package store

import (
	"encoding/json"

	"github.com/castaldi/frank/internal/events"
	"github.com/castaldi/frank/internal/logging"
)

// EventLog persists lifecycle events. It subscribes to the event bus as
// just another observer; a write failure is logged and never fails the
// emitting session.
type EventLog struct {
	db  *DB
	log *logging.Logger
}

func NewEventLog(db *DB, log *logging.Logger) *EventLog {
	return &EventLog{db: db, log: log.Sub("store.events")}
}

// Handler returns the bus handler that writes each event.
func (e *EventLog) Handler() events.Handler {
	return func(ev events.Event) {
		var payload []byte
		if ev.Payload != nil {
			payload, _ = json.Marshal(ev.Payload)
		}
		_, err := e.db.sql.Exec(
			"INSERT INTO event_log (name, conversation_id, tool_name, payload) VALUES (?, ?, ?, ?)",
			ev.Name, ev.ConversationID, ev.ToolName, string(payload),
		)
		if err != nil {
			e.log.Error().Err(err).Str("event", ev.Name).Msg("failed to persist event")
		}
	}
}

// StoredEvent is one persisted lifecycle event.
type StoredEvent struct {
	Name           string
	ConversationID string
	ToolName       string
	Payload        map[string]any
}

// ByConversation returns the persisted events of one conversation in
// emission order.
func (e *EventLog) ByConversation(conversationID string) ([]StoredEvent, error) {
	rows, err := e.db.sql.Query(
		"SELECT name, conversation_id, tool_name, payload FROM event_log WHERE conversation_id = ? ORDER BY id ASC",
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		var payload string
		if err := rows.Scan(&ev.Name, &ev.ConversationID, &ev.ToolName, &payload); err != nil {
			return nil, err
		}
		if payload != "" {
			_ = json.Unmarshal([]byte(payload), &ev.Payload)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
