package organization

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	id "truconn/pkg/domain"
)

// Reader is the lookup surface the compliance engine needs.
type Reader interface {
	FindByID(ctx context.Context, orgID id.OrganizationID) (*Organization, error)
	FindByOwner(ctx context.Context, ownerID id.UserID) (*Organization, error)
	ListIDs(ctx context.Context) ([]id.OrganizationID, error)
}

// CachedReader fronts a Reader with bounded, expiring LRU caches. Misses and
// errors are never cached.
type CachedReader struct {
	next    Reader
	byID    *expirable.LRU[id.OrganizationID, Organization]
	byOwner *expirable.LRU[id.UserID, Organization]
}

func NewCachedReader(next Reader, size int, ttl time.Duration) *CachedReader {
	if size <= 0 {
		size = 1024
	}
	return &CachedReader{
		next:    next,
		byID:    expirable.NewLRU[id.OrganizationID, Organization](size, nil, ttl),
		byOwner: expirable.NewLRU[id.UserID, Organization](size, nil, ttl),
	}
}

func (c *CachedReader) FindByID(ctx context.Context, orgID id.OrganizationID) (*Organization, error) {
	if org, ok := c.byID.Get(orgID); ok {
		return &org, nil
	}
	org, err := c.next.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	c.remember(org)
	return org, nil
}

func (c *CachedReader) FindByOwner(ctx context.Context, ownerID id.UserID) (*Organization, error) {
	if org, ok := c.byOwner.Get(ownerID); ok {
		return &org, nil
	}
	org, err := c.next.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	c.remember(org)
	return org, nil
}

// ListIDs always reads through; the scheduler needs the current set.
func (c *CachedReader) ListIDs(ctx context.Context) ([]id.OrganizationID, error) {
	return c.next.ListIDs(ctx)
}

// Forget drops an organization from both caches.
func (c *CachedReader) Forget(org *Organization) {
	if org == nil {
		return
	}
	c.byID.Remove(org.ID)
	c.byOwner.Remove(org.OwnerID)
}

func (c *CachedReader) remember(org *Organization) {
	if org == nil {
		return
	}
	c.byID.Add(org.ID, *org)
	c.byOwner.Add(org.OwnerID, *org)
}

var _ Reader = (*CachedReader)(nil)
