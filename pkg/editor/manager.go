package editor

import (
	"sync"

	"github.com/pagecraft/pagecraft/pkg/realtime"
	"github.com/pagecraft/pagecraft/pkg/storage"
)

// Manager hands out one session per page path. Opening an already open page
// returns the existing session, so two browser tabs of the same operator
// share state instead of fighting each other.
type Manager struct {
	store *storage.Store
	hub   *realtime.Hub

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager. hub may be nil.
func NewManager(store *storage.Store, hub *realtime.Hub) *Manager {
	return &Manager{
		store:    store,
		hub:      hub,
		sessions: make(map[string]*Session),
	}
}

// Open returns the session for pagePath, creating it on first use.
func (m *Manager) Open(pagePath string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[pagePath]; ok {
		return s, nil
	}

	s, err := NewSession(m.store, m.hub, pagePath)
	if err != nil {
		return nil, err
	}
	m.sessions[pagePath] = s
	return s, nil
}

// Get returns the open session for pagePath, nil when none exists.
func (m *Manager) Get(pagePath string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[pagePath]
}

// CloseSession closes and forgets the session for pagePath.
func (m *Manager) CloseSession(pagePath string) {
	m.mu.Lock()
	s := m.sessions[pagePath]
	delete(m.sessions, pagePath)
	m.mu.Unlock()

	if s != nil {
		s.Close()
	}
}

// Close closes every open session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
