// Package events carries session lifecycle notifications to observers.
// Emission is fire-and-forget; no observer can fail a session.
package events

import (
	"sync"
	"time"

	"github.com/castaldi/frank/internal/logging"
)

// Lifecycle event names. Every payload carries at least conversationId
// and toolName.
const (
	SessionStarted           = "session_started"
	SessionParameterReceived = "session_parameter_received"
	SessionReady             = "session_ready"
	SessionRunning           = "session_running"
	SessionFinished          = "session_finished"
	SessionCanceled          = "session_canceled"
	GatingNotice             = "gating_notice"
)

// Event is one lifecycle notification.
type Event struct {
	Name           string         `json:"name"`
	ConversationID string         `json:"conversationId"`
	ToolName       string         `json:"toolName"`
	Payload        map[string]any `json:"payload,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Emitter is what session code depends on.
type Emitter interface {
	Emit(name, conversationID, toolName string, payload map[string]any)
}

// Handler consumes events from a Bus subscription.
type Handler func(Event)

// Bus fans events out to named subscribers synchronously. Handlers must
// not block; a slow handler slows the emitting turn.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	log      *logging.Logger
}

func NewBus(log *logging.Logger) *Bus {
	return &Bus{
		handlers: make(map[string]Handler),
		log:      log.Sub("events"),
	}
}

// Subscribe registers a handler under a name, replacing any previous
// handler with the same name.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = h
}

// Unsubscribe removes a named handler.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, name)
}

// Emit delivers the event to every subscriber. A panicking handler is
// logged and skipped; it cannot break the emitting session.
func (b *Bus) Emit(name, conversationID, toolName string, payload map[string]any) {
	ev := Event{
		Name:           name,
		ConversationID: conversationID,
		ToolName:       toolName,
		Payload:        payload,
		Timestamp:      time.Now(),
	}

	b.mu.RLock()
	handlers := make(map[string]Handler, len(b.handlers))
	for n, h := range b.handlers {
		handlers[n] = h
	}
	b.mu.RUnlock()

	for subName, h := range handlers {
		b.dispatch(subName, h, ev)
	}
}

func (b *Bus) dispatch(subscriber string, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("subscriber", subscriber).
				Str("event", ev.Name).
				Any("panic", r).
				Msg("event handler panicked")
		}
	}()
	h(ev)
}

// LogSink returns a handler that writes every event as a structured
// debug line.
func LogSink(log *logging.Logger) Handler {
	l := log.Sub("events.sink")
	return func(ev Event) {
		l.Debug().
			Str("event", ev.Name).
			Str("conversationId", ev.ConversationID).
			Str("tool", ev.ToolName).
			Msg("lifecycle event")
	}
}

// Nop is an Emitter that drops everything, for tests and wiring defaults.
type Nop struct{}

func (Nop) Emit(string, string, string, map[string]any) {}

// Recorder is a test Emitter that records every emission in order.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

func (r *Recorder) Emit(name, conversationID, toolName string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Event{
		Name:           name,
		ConversationID: conversationID,
		ToolName:       toolName,
		Payload:        payload,
		Timestamp:      time.Now(),
	})
}

// Names returns the recorded event names in emission order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, ev := range r.Events {
		out[i] = ev.Name
	}
	return out
}
