// Package access adapts the request-management and consent data to the
// compliance engine's DataAccessPort.
package access

import (
	"context"
	"sort"
	"sync"
	"time"

	"truconn/internal/compliance/models"
	id "truconn/pkg/domain"
)

type consentKey struct {
	user        id.UserID
	consentType id.ConsentTypeID
}

// InMemoryStore is a DataAccessPort backed by maps. Used by tests and by the
// server when no database is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[id.OrganizationID][]models.AccessRequest
	consents map[consentKey]models.UserConsent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		requests: make(map[id.OrganizationID][]models.AccessRequest),
		consents: make(map[consentKey]models.UserConsent),
	}
}

// AddRequest records an access request.
func (s *InMemoryStore) AddRequest(req models.AccessRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reqs := append(s.requests[req.OrgID], req)
	sort.SliceStable(reqs, func(i, j int) bool {
		return reqs[i].RequestedAt.Before(reqs[j].RequestedAt)
	})
	s.requests[req.OrgID] = reqs
}

// PutConsent replaces the consent row for (user, consent type).
func (s *InMemoryStore) PutConsent(c models.UserConsent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consents[consentKey{c.UserID, c.ConsentTypeID}] = c
}

func (s *InMemoryStore) FetchRequests(_ context.Context, orgID id.OrganizationID, status *models.RequestStatus) ([]models.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AccessRequest, 0, len(s.requests[orgID]))
	for _, req := range s.requests[orgID] {
		if status != nil && req.Status != *status {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

func (s *InMemoryStore) FetchConsent(_ context.Context, userID id.UserID, consentTypeID id.ConsentTypeID) (*models.UserConsent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consents[consentKey{userID, consentTypeID}]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *InMemoryStore) FetchRequestsSince(_ context.Context, orgID id.OrganizationID, since time.Time) ([]models.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AccessRequest
	for _, req := range s.requests[orgID] {
		if !req.RequestedAt.Before(since) {
			out = append(out, req)
		}
	}
	return out, nil
}
