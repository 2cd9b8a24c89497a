// Package session tracks short-lived interaction sessions with TTL expiry.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// DefaultTTL is how long a session lives after creation.
const DefaultTTL = 24 * time.Hour

// Session is one interaction session. Expiry is measured from creation,
// not last access.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	State     map[string]string
	History   []HistoryEntry
}

// HistoryEntry is one recorded interaction within a session.
type HistoryEntry struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// Manager owns sessions. All methods are safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewManager creates a session manager. A non-positive ttl uses DefaultTTL.
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		sessions: map[string]*Session{},
		ttl:      ttl,
		now:      time.Now,
	}
}

// GenerateSessionID returns a ses- prefixed 8-hex identifier.
func GenerateSessionID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		n := time.Now().UnixNano()
		b[0] = byte(n)
		b[1] = byte(n >> 8)
		b[2] = byte(n >> 16)
		b[3] = byte(n >> 24)
	}
	return "ses-" + hex.EncodeToString(b)
}

// Create starts a new session for userID and returns its ID.
func (m *Manager) Create(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Session{
		ID:        GenerateSessionID(),
		UserID:    userID,
		CreatedAt: m.now(),
		State:     map[string]string{},
	}
	m.sessions[s.ID] = s
	return s.ID
}

// Get returns the session, or nil if it does not exist or has expired.
// Expired sessions are removed on access.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

// get checks TTL and evicts. Caller holds m.mu.
func (m *Manager) get(id string) *Session {
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	if m.now().Sub(s.CreatedAt) > m.ttl {
		delete(m.sessions, id)
		return nil
	}
	return s
}

// SetState stores a key in the session state. Returns false for unknown or
// expired sessions.
func (m *Manager) SetState(id, key, value string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.get(id)
	if s == nil {
		return false
	}
	s.State[key] = value
	return true
}

// State reads a key from the session state.
func (m *Manager) State(id, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.get(id)
	if s == nil {
		return "", false
	}
	v, ok := s.State[key]
	return v, ok
}

// AddHistory appends an interaction to the session history.
func (m *Manager) AddHistory(id, role, content string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.get(id)
	if s == nil {
		return false
	}
	s.History = append(s.History, HistoryEntry{
		Role:      role,
		Content:   content,
		Timestamp: m.now(),
	})
	return true
}

// History returns a copy of the session history, or nil for unknown or
// expired sessions.
func (m *Manager) History(id string) []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.get(id)
	if s == nil {
		return nil
	}
	out := make([]HistoryEntry, len(s.History))
	copy(out, s.History)
	return out
}

// Delete removes a session. Returns false if it was not present.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Cleanup removes all expired sessions and returns how many were removed.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if now.Sub(s.CreatedAt) > m.ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions, including any not yet swept.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
