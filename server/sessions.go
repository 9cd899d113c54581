package server

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrTooManySessions is returned when the session limit is reached.
var ErrTooManySessions = errors.New("too many play sessions")

// Session is one connected player running one machine.
type Session struct {
	ID      string
	Player  string
	Started time.Time
}

// SessionStore tracks live play sessions and bounds how many run at once.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	max      int
}

// NewSessionStore creates a store allowing max concurrent sessions.
func NewSessionStore(max int) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		max:      max,
	}
}

// Create registers a new session for player.
func (s *SessionStore) Create(player string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.max > 0 && len(s.sessions) >= s.max {
		return nil, ErrTooManySessions
	}
	session := &Session{
		ID:      uuid.NewString(),
		Player:  player,
		Started: time.Now(),
	}
	s.sessions[session.ID] = session
	return session, nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	return session, ok
}

// Destroy removes a session.
func (s *SessionStore) Destroy(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// List returns the live sessions, oldest first.
func (s *SessionStore) List() []Session {
	s.mu.RLock()
	out := make([]Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, *session)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}
