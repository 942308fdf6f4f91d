// Package domain holds the shared value types passed between the delegation
// router, lifecycle sessions, and the transport collaborators.
package domain

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// Role constants for transcript turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one recorded exchange half in a conversation transcript.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Context carries the prior-turn information available to a classification
// or extraction call. It is a snapshot; nothing mutates it after creation.
type Context struct {
	ConversationID string `json:"conversationId"`
	PriorTurns     []Turn `json:"priorTurns,omitempty"`
}

// LastUserText returns the most recent user turn's text, or "".
func (c *Context) LastUserText() string {
	if c == nil {
		return ""
	}
	for i := len(c.PriorTurns) - 1; i >= 0; i-- {
		if c.PriorTurns[i].Role == RoleUser {
			return c.PriorTurns[i].Text
		}
	}
	return ""
}

// Hash returns a stable digest of the context for cache keying.
// A nil context hashes to "0" so cache keys stay well-formed.
func (c *Context) Hash() string {
	if c == nil {
		return "0"
	}
	h := fnv.New64a()
	h.Write([]byte(c.ConversationID))
	for _, t := range c.PriorTurns {
		h.Write([]byte{0})
		h.Write([]byte(t.Role))
		h.Write([]byte{0})
		h.Write([]byte(t.Text))
	}
	return fmt.Sprintf("%x", h.Sum64())
}

// ReplyKind classifies the single terminal reply of a turn.
type ReplyKind string

const (
	ReplyConversational ReplyKind = "conversational"
	ReplyClarification  ReplyKind = "clarification"
	ReplyGating         ReplyKind = "gating"
	ReplyToolResult     ReplyKind = "tool_result"
	ReplyCanceled       ReplyKind = "canceled"
	ReplyError          ReplyKind = "error"
)

// Reply is the one terminal response produced for a user turn.
type Reply struct {
	Kind     ReplyKind `json:"kind"`
	Text     string    `json:"text"`
	ToolName string    `json:"toolName,omitempty"`
	Success  bool      `json:"success"`
}

// OutcomeStatus is the terminal status of a lifecycle session.
type OutcomeStatus string

const (
	OutcomeSuccess  OutcomeStatus = "success"
	OutcomeError    OutcomeStatus = "error"
	OutcomeCanceled OutcomeStatus = "canceled"
)

// Outcome is handed to the completion callback when a session reaches a
// terminal phase.
type Outcome struct {
	ConversationID string         `json:"conversationId"`
	ToolName       string         `json:"toolName"`
	Status         OutcomeStatus  `json:"status"`
	Reason         string         `json:"reason,omitempty"`
	Message        string         `json:"message,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// Summary renders the user-facing outcome line the router sends when a
// session closes.
func (o Outcome) Summary() string {
	switch o.Status {
	case OutcomeSuccess:
		msg := o.Message
		if msg == "" {
			msg = "operazione completata"
		}
		return fmt.Sprintf("%s [tool %s completato]", msg, o.ToolName)
	case OutcomeCanceled:
		return fmt.Sprintf("Operazione annullata. Ho chiuso il tool %q.", o.ToolName)
	default:
		reason := o.Reason
		if reason == "" {
			reason = o.Message
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			reason = "errore sconosciuto"
		}
		return fmt.Sprintf("Errore nell'esecuzione di %s: %s", o.ToolName, reason)
	}
}
