package audit

import (
	"context"
	"sync"
)

// MemoryStore keeps the trail in process memory. Used when no database is
// configured and throughout the test suite.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStore) Summary(_ context.Context, recent int) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int64)
	for _, e := range s.events {
		counts[e.EventType]++
	}
	start := len(s.events) - recent
	if start < 0 {
		start = 0
	}
	tail := s.events[start:]
	out := make([]Event, len(tail))
	// Most recent first.
	for i, e := range tail {
		out[len(tail)-1-i] = e
	}
	return Summary{Counts: counts, Recent: out}, nil
}

// Events returns a copy of the recorded trail. Test helper.
func (s *MemoryStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
