// Package session manages the registry of PTY engine sessions exposed over
// the MCP surface.
package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acolita/pty-shell-mcp/internal/pty"
)

// DefaultMaxSessions bounds the registry when the config leaves it unset.
const DefaultMaxSessions = 10

// Managed is one registered engine session.
type Managed struct {
	ID        string
	Engine    *pty.Session
	CreatedAt time.Time
}

// Manager is a thread-safe registry of engine sessions.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Managed
	maxSessions int
}

// NewManager creates a registry bounded at maxSessions.
func NewManager(maxSessions int) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Manager{
		sessions:    make(map[string]*Managed),
		maxSessions: maxSessions,
	}
}

// SetMaxSessions updates the registry bound (config hot-reload). Existing
// sessions above a lowered bound are kept; only new creates are refused.
func (m *Manager) SetMaxSessions(maxSessions int) {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxSessions = maxSessions
}

// Create registers a fresh session and returns it.
func (m *Manager) Create() (*Managed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.maxSessions {
		return nil, fmt.Errorf("max sessions reached (%d)", m.maxSessions)
	}

	sess := &Managed{
		ID:        "sess_" + uuid.NewString(),
		Engine:    pty.NewSession(),
		CreatedAt: time.Now(),
	}
	m.sessions[sess.ID] = sess
	return sess, nil
}

// Get retrieves a session by ID.
func (m *Manager) Get(id string) (*Managed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return sess, nil
}

// Close removes a session, killing any in-flight run best-effort.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}

	// Best effort: the run loop observes the kill and winds down on its own.
	_ = sess.Engine.Kill()

	delete(m.sessions, id)
	return nil
}

// List returns all session IDs in stable order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
