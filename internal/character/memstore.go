package character

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
	chars map[string]Character
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{chars: make(map[string]Character)}
}

// Create implements [Store.Create].
func (s *MemStore) Create(_ context.Context, c *Character) error {
	if err := c.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.chars[c.ID]; exists {
		return fmt.Errorf("character: character with id %q already exists", c.ID)
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.LastUsedAt = now
	s.chars[c.ID] = *c
	return nil
}

// Get implements [Store.Get].
func (s *MemStore) Get(_ context.Context, ownerID, id string) (*Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chars[id]
	if !ok || c.OwnerID != ownerID {
		return nil, nil
	}
	return &c, nil
}

// List implements [Store.List].
func (s *MemStore) List(_ context.Context, ownerID string) ([]Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Character
	for _, c := range s.chars {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUsedAt.After(out[j].LastUsedAt)
	})
	return out, nil
}

// Delete implements [Store.Delete].
func (s *MemStore) Delete(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.chars[id]; ok && c.OwnerID == ownerID {
		delete(s.chars, id)
	}
	return nil
}

// MarkUsed implements [Store.MarkUsed].
func (s *MemStore) MarkUsed(_ context.Context, ownerID, id string) (*Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chars[id]
	if !ok || c.OwnerID != ownerID {
		return nil, nil
	}
	c.UsageCount++
	c.LastUsedAt = time.Now().UTC()
	s.chars[id] = c
	return &c, nil
}
