package organization

import (
	"context"
	"sort"
	"sync"

	id "truconn/pkg/domain"
	"truconn/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu   sync.RWMutex
	orgs map[id.OrganizationID]*Organization
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{orgs: make(map[id.OrganizationID]*Organization)}
}

// Save inserts or replaces an organization.
func (s *InMemoryStore) Save(_ context.Context, org *Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *org
	s.orgs[org.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, orgID id.OrganizationID) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[orgID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (s *InMemoryStore) FindByOwner(_ context.Context, ownerID id.UserID) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, org := range s.orgs {
		if org.OwnerID == ownerID {
			cp := *org
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// ListIDs returns every organization ID, sorted for stable iteration.
func (s *InMemoryStore) ListIDs(_ context.Context) ([]id.OrganizationID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]id.OrganizationID, 0, len(s.orgs))
	for orgID := range s.orgs {
		ids = append(ids, orgID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}
