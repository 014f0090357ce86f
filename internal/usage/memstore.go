package usage

import (
	"context"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is suitable for development without a database and for testing.
type MemStore struct {
	mu   sync.Mutex
	recs map[string]Record
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{recs: make(map[string]Record)}
}

// Get implements [Store.Get].
func (s *MemStore) Get(_ context.Context, userID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[userID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Increment implements [Store.Increment].
func (s *MemStore) Increment(_ context.Context, userID string, metric Metric, periodStart time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[userID]
	if !ok {
		rec = Record{UserID: userID, PeriodStart: periodStart}
	}
	switch metric {
	case MetricConversation:
		rec.Conversation++
	case MetricImage:
		rec.Image++
	case MetricTTS:
		rec.TTS++
	}
	s.recs[userID] = rec
	return &rec, nil
}

// Reset implements [Store.Reset].
func (s *MemStore) Reset(_ context.Context, userID string, from, newStart time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[userID]
	if !ok || !rec.PeriodStart.Equal(from) {
		return false, nil
	}
	s.recs[userID] = Record{UserID: userID, PeriodStart: newStart}
	return true, nil
}
