package gateway

import "github.com/castaldi/frank/internal/events"

// Frame types exchanged over the websocket.
const (
	// Inbound
	FrameMessage = "message"

	// Outbound
	FrameReply       = "reply"
	FrameStreamStart = "stream_start"
	FrameStreamChunk = "stream_chunk"
	FrameStreamEnd   = "stream_end"
	FrameEvent       = "event"
	FrameError       = "error"
)

// Frame is the single wire envelope. Fields are populated per type:
// a message carries conversationId and text; a reply adds kind, toolName
// and success; an event wraps a lifecycle event.
type Frame struct {
	Type           string        `json:"type"`
	ID             string        `json:"id,omitempty"`
	ConversationID string        `json:"conversationId,omitempty"`
	Text           string        `json:"text,omitempty"`
	Stream         bool          `json:"stream,omitempty"`
	Kind           string        `json:"kind,omitempty"`
	ToolName       string        `json:"toolName,omitempty"`
	Success        bool          `json:"success,omitempty"`
	Event          *events.Event `json:"event,omitempty"`
	Message        string        `json:"message,omitempty"`
}
