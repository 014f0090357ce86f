package user

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is suitable for development without a database and for testing.
type MemStore struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{users: make(map[string]User)}
}

// Create implements [Store.Create].
func (s *MemStore) Create(_ context.Context, u *User) error {
	if err := u.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID]; exists {
		return fmt.Errorf("user: user with id %q already exists", u.ID)
	}
	email := normalizeEmail(u.Email)
	for _, existing := range s.users {
		if existing.Email == email {
			return fmt.Errorf("user: account with email %q already exists", u.Email)
		}
	}

	u.Email = email
	u.Role = defaultRole(u.Role)
	u.Tier = defaultTier(u.Tier)
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = *u
	return nil
}

// Get implements [Store.Get].
func (s *MemStore) Get(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// GetByEmail implements [Store.GetByEmail].
func (s *MemStore) GetByEmail(_ context.Context, email string) (*User, error) {
	email = normalizeEmail(email)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

// GetByGoogleID implements [Store.GetByGoogleID].
func (s *MemStore) GetByGoogleID(_ context.Context, googleID string) (*User, error) {
	if googleID == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.GoogleID == googleID {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

// List implements [Store.List].
func (s *MemStore) List(_ context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Update implements [Store.Update].
func (s *MemStore) Update(_ context.Context, u *User) error {
	if err := u.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return fmt.Errorf("user: user with id %q not found", u.ID)
	}
	u.Email = normalizeEmail(u.Email)
	u.Role = defaultRole(u.Role)
	u.Tier = defaultTier(u.Tier)
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = *u
	return nil
}
