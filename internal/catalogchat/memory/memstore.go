package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemStore keeps state in process memory. It is safe for concurrent use.
type MemStore struct {
	mu     sync.Mutex
	states map[string]ConversationState
	now    func() time.Time
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{states: make(map[string]ConversationState), now: time.Now}
}

// Read implements Store.
func (m *MemStore) Read(_ context.Context, id string) ConversationState {
	id = normalizeID(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	if !ok {
		return ConversationState{ConversationID: id}
	}
	return s.Clone()
}

// Write implements Store.
func (m *MemStore) Write(_ context.Context, id string, patch Patch) error {
	id = normalizeID(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	if !ok {
		s = ConversationState{ConversationID: id}
	}
	if err := patch.Apply(&s); err != nil {
		return err
	}
	s.UpdatedAt = m.now().UTC()
	m.states[id] = s
	return nil
}

// ClearPending implements Store.
func (m *MemStore) ClearPending(_ context.Context, id, reason string) error {
	id = normalizeID(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	if !ok || s.Pending == nil {
		return nil
	}
	slog.Debug("memory: pending cleared", "conversation_id", id, "pending_id", s.Pending.ID, "reason", reason)
	s.Pending = nil
	s.UpdatedAt = m.now().UTC()
	m.states[id] = s
	return nil
}

// Reset forgets a conversation.
func (m *MemStore) Reset(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, normalizeID(id))
}
