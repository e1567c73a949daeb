package session

import (
	"sync"

	"github.com/tunelab/hypertune/internal/tuner"
)

// Manager tracks the live sessions of a process. It is the embedding
// point for anything that needs to look sessions up by ID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

// Create builds a new session around the given tuner and registers it.
func (m *Manager) Create(tn tuner.Tuner, cfg Config) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := New(tn, cfg)
	m.sessions[s.ID()] = s
	return s
}

// Add registers an existing session, typically one restored from disk.
func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID()] = s
}

// Get retrieves a session by ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[id]
	return s, exists
}

// List returns all registered sessions.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Remove drops a session from the registry and releases its event
// subscribers. The session's persisted state is untouched.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, exists := m.sessions[id]; exists {
		s.Events().Cleanup(id)
		delete(m.sessions, id)
	}
}
