package conversation

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"invoicerag/internal/models"
)

// ErrSessionNotFound is returned by AppendTurn for an unknown session id.
// Callers are expected to have called GetOrCreateSession first.
var ErrSessionNotFound = errors.New("conversation: session not found")

type session struct {
	mu         sync.Mutex
	id         string
	turns      []models.Turn
	createdAt  time.Time
	lastActive time.Time
}

// Stats summarizes the live session table.
type Stats struct {
	ActiveSessions int `json:"active_sessions"`
	TotalTurns     int `json:"total_turns"`
}

// Manager owns the per-session turn history used for prompt context.
// Sessions are independent mutable units: appends to one session never block
// another, and eviction only touches the sessions it removes.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session

	ttl      time.Duration
	maxTurns int
}

// NewManager builds a session table. ttl bounds inactivity before a session
// is evictable; maxTurns caps the history retained per session (most recent
// kept).
func NewManager(ttl time.Duration, maxTurns int) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &Manager{
		sessions: make(map[string]*session),
		ttl:      ttl,
		maxTurns: maxTurns,
	}
}

// GetOrCreateSession returns the given id when it names a live session, and
// otherwise creates a fresh session under a new id. An expired id is never
// resurrected; it silently rotates to a new session (with a log line) so
// context cannot bleed across unrelated conversations. Reads do not bump
// lastActive; only AppendTurn does.
func (m *Manager) GetOrCreateSession(id string) string {
	now := time.Now()

	if id != "" {
		m.mu.RLock()
		s, ok := m.sessions[id]
		m.mu.RUnlock()
		if ok {
			s.mu.Lock()
			live := now.Sub(s.lastActive) < m.ttl
			s.mu.Unlock()
			if live {
				return id
			}
			m.mu.Lock()
			delete(m.sessions, id)
			m.mu.Unlock()
			log.Printf("conversation: session %s expired, rotating to a new session", id)
		}
	}

	newID := uuid.NewString()
	m.mu.Lock()
	m.sessions[newID] = &session{
		id:         newID,
		createdAt:  now,
		lastActive: now,
	}
	m.mu.Unlock()
	log.Printf("conversation: created session %s", newID)
	return newID
}

// AppendTurn appends one role-tagged message to the session's history and
// bumps its activity time. At most maxTurns most-recent turns are retained.
func (m *Manager) AppendTurn(id, role, text string) error {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, models.Turn{Role: role, Text: text, Timestamp: time.Now()})
	if len(s.turns) > m.maxTurns {
		s.turns = append([]models.Turn(nil), s.turns[len(s.turns)-m.maxTurns:]...)
	}
	s.lastActive = time.Now()
	return nil
}

// BuildContext returns the most recent maxTurns turns, oldest first, for
// prompt assembly. Recency wins: truncation always drops the oldest turns.
// An unknown session yields an empty context.
func (m *Manager) BuildContext(id string, maxTurns int) []models.Turn {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.turns
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	out := make([]models.Turn, len(turns))
	copy(out, turns)
	return out
}

// Reset removes a session outright. Resetting an unknown id is a no-op.
func (m *Manager) Reset(id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		log.Printf("conversation: cleared session %s", id)
	}
}

// EvictExpired removes every session whose last activity precedes now-ttl.
// Safe to call concurrently with reads and writes to other sessions.
func (m *Manager) EvictExpired(now time.Time, ttl time.Duration) int {
	cutoff := now.Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		expired := s.lastActive.Before(cutoff)
		s.mu.Unlock()
		if expired {
			delete(m.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		log.Printf("conversation: evicted %d expired sessions", evicted)
	}
	return evicted
}

// TTL returns the configured inactivity threshold.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Statistics reports active sessions and total retained turns.
func (m *Manager) Statistics() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{ActiveSessions: len(m.sessions)}
	for _, s := range m.sessions {
		s.mu.Lock()
		st.TotalTurns += len(s.turns)
		s.mu.Unlock()
	}
	return st
}
