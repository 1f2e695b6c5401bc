package memory

import (
	"context"
	"sort"
	"sync"

	audit "certregistry/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]audit.Event
	order  []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string][]audit.Event)
	s.order = nil
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.Subject] = append(s.events[event.Subject], event)
	s.order = append(s.order, event)
	return nil
}

// ListBySubject returns the events recorded for one certificate identity in
// emission order.
func (s *InMemoryStore) ListBySubject(_ context.Context, subject string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[subject]...), nil
}

// ListAll returns every event in emission order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.order...), nil
}

// ListRecent returns up to limit events, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	events := append([]audit.Event{}, s.order...)
	s.mu.RUnlock()

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if limit >= 0 && limit < len(events) {
		events = events[:limit]
	}
	return events, nil
}
