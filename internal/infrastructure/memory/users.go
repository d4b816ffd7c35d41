package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-passwordless/internal/domain"
)

// UserStore keeps users in process memory, keyed by identifier.
type UserStore struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]domain.User)}
}

func (s *UserStore) Get(_ context.Context, identifier string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[identifier]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return &u, nil
}

func (s *UserStore) Create(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Identifier]; ok {
		return fmt.Errorf("identifier taken: %w", domain.ErrConflict)
	}
	s.users[u.Identifier] = *u
	return nil
}

func (s *UserStore) MarkVerified(_ context.Context, identifier string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[identifier]
	if !ok {
		return false, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	first := u.IsNew
	u.IsNew = false
	if u.VerifiedAt == nil {
		u.VerifiedAt = &at
	}
	s.users[identifier] = u
	return first, nil
}
