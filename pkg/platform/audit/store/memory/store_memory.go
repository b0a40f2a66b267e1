package memory

import (
	"context"
	"sync"

	audit "truconn/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string][]audit.Event)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.OrganizationID] = append(s.events[event.OrganizationID], event)
	return nil
}

// ListByOrganization returns an organization's events in append order.
func (s *InMemoryStore) ListByOrganization(_ context.Context, orgID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[orgID]...), nil
}

// CountByType counts an organization's events of one type.
func (s *InMemoryStore) CountByType(orgID string, eventType audit.EventType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.events[orgID] {
		if e.Type == eventType {
			n++
		}
	}
	return n
}
