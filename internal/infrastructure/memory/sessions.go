package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-passwordless/internal/domain"
)

// SessionStore keeps sessions in process memory, keyed by session id.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]domain.Session)}
}

func (s *SessionStore) Put(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	cp.Bearer = ""
	cp.User = nil
	s.sessions[sess.SessionID] = cp
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	return &sess, nil
}

func (s *SessionStore) Disable(_ context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	sess.Enable = false
	if sess.RevokedAt == nil {
		sess.RevokedAt = &at
	}
	s.sessions[sessionID] = sess
	return nil
}
