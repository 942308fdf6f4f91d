package lifecycle

import (
	"fmt"
	"sync"
)

// Store is the active-session index: at most one session per conversation.
// The single-owner invariant of the delegation router rests on it.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Put registers a session for its conversation. It fails if one is
// already active, which callers must treat as a programming error.
func (st *Store) Put(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, exists := st.sessions[s.ConversationID]; exists {
		return fmt.Errorf("conversation %s already has an active session", s.ConversationID)
	}
	st.sessions[s.ConversationID] = s
	return nil
}

// Get returns the active session for a conversation, or nil.
func (st *Store) Get(conversationID string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[conversationID]
}

// Remove clears the active-session slot for a conversation.
func (st *Store) Remove(conversationID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, conversationID)
}

// Len returns the number of active sessions across all conversations.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
