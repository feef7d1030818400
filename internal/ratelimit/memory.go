package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	count int
	until time.Time
}

// MemoryStore keeps counters in process memory. It does not coordinate
// across instances.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*bucket)}
}

func (s *MemoryStore) Take(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || !now.Before(b.until) {
		b = &bucket{count: 1, until: now.Add(window)}
		s.buckets[key] = b
		return Window{Allowed: true, Count: 1, ResetAt: b.until}, nil
	}
	if b.count < limit {
		b.count++
		return Window{Allowed: true, Count: b.count, ResetAt: b.until}, nil
	}
	return Window{Allowed: false, Count: b.count, ResetAt: b.until}, nil
}
