// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows engine tests to run without SQLite

package store

import (
	"context"
	"slices"
	"sync"

	"github.com/2389/chat-sync/internal/model"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	session       *Session
	conversations map[int64][]model.Conversation // keyed by viewer ID
	closed        bool
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[int64][]model.Conversation),
	}
}

// SaveSession stores the session.
func (m *MockStore) SaveSession(ctx context.Context, session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := session
	m.session = &s
	return nil
}

// LoadSession returns the stored session or ErrNotFound.
func (m *MockStore) LoadSession(ctx context.Context) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return Session{}, ErrNotFound
	}
	return *m.session, nil
}

// ClearSession forgets everything.
func (m *MockStore) ClearSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	clear(m.conversations)
	return nil
}

// SaveConversations replaces the viewer's list.
func (m *MockStore) SaveConversations(ctx context.Context, viewerID int64, conversations []model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[viewerID] = slices.Clone(conversations)
	return nil
}

// LoadConversations returns the viewer's list.
func (m *MockStore) LoadConversations(ctx context.Context, viewerID int64) ([]model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.conversations[viewerID]), nil
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
