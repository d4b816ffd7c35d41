package memory

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/go-passwordless/internal/domain"
)

type slot struct {
	userID string
	kind   domain.CredentialKind
}

// CredentialStore is a mutex-guarded credential store. A single lock makes
// Rotate and TryConsume trivially atomic.
type CredentialStore struct {
	mu    sync.Mutex
	byID  map[string]domain.Credential
	slots map[slot][]string
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		byID:  make(map[string]domain.Credential),
		slots: make(map[slot][]string),
	}
}

func (s *CredentialStore) Rotate(_ context.Context, c *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateLocked(c.UserID, c.Kind)
	k := slot{c.UserID, c.Kind}
	s.byID[c.CredentialID] = *c
	s.slots[k] = append(s.slots[k], c.CredentialID)
	return nil
}

func (s *CredentialStore) InvalidateAll(_ context.Context, userID string, kind domain.CredentialKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateLocked(userID, kind)
	return nil
}

func (s *CredentialStore) invalidateLocked(userID string, kind domain.CredentialKind) {
	k := slot{userID, kind}
	for _, id := range s.slots[k] {
		delete(s.byID, id)
	}
	delete(s.slots, k)
}

func (s *CredentialStore) FindByHash(_ context.Context, userID string, kind domain.CredentialKind, secretHash string) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.findLocked(userID, kind, secretHash); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("credential not found: %w", domain.ErrNotFound)
}

func (s *CredentialStore) FindActiveByHash(_ context.Context, userID string, kind domain.CredentialKind, secretHash string, now time.Time) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.findLocked(userID, kind, secretHash); c != nil && c.Active(now) {
		return c, nil
	}
	return nil, fmt.Errorf("active credential not found: %w", domain.ErrNotFound)
}

func (s *CredentialStore) findLocked(userID string, kind domain.CredentialKind, secretHash string) *domain.Credential {
	for _, id := range s.slots[slot{userID, kind}] {
		c := s.byID[id]
		if subtle.ConstantTimeCompare([]byte(c.SecretHash), []byte(secretHash)) == 1 {
			return &c
		}
	}
	return nil
}

func (s *CredentialStore) TryConsume(_ context.Context, c *domain.Credential, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[c.CredentialID]
	if !ok || !cur.Active(now) {
		return false, nil
	}
	cur.UsedAt = &now
	s.byID[c.CredentialID] = cur
	return true, nil
}

func (s *CredentialStore) Revoke(_ context.Context, c *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(c.CredentialID)
	return nil
}

func (s *CredentialStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.byID {
		if c.ExpiresAt.Before(now) {
			s.deleteLocked(id)
			n++
		}
	}
	return n, nil
}

func (s *CredentialStore) deleteLocked(id string) {
	c, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	k := slot{c.UserID, c.Kind}
	ids := s.slots[k][:0]
	for _, other := range s.slots[k] {
		if other != id {
			ids = append(ids, other)
		}
	}
	if len(ids) == 0 {
		delete(s.slots, k)
		return
	}
	s.slots[k] = ids
}

// Count returns how many credentials of kind userID holds. Intended for tests and diagnostics.
func (s *CredentialStore) Count(userID string, kind domain.CredentialKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots[slot{userID, kind}])
}

// Get returns a copy of the stored credential, if present.
func (s *CredentialStore) Get(id string) (domain.Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	return c, ok
}
