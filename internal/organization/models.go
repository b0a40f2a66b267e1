// Package organization is a read-mostly directory of organizations and the
// users who own them. Onboarding writes it; the compliance engine only reads.
package organization

import (
	"time"

	id "truconn/pkg/domain"
)

type Organization struct {
	ID        id.OrganizationID
	Name      string
	OwnerID   id.UserID
	CreatedAt time.Time
}

// IsOwnedBy reports whether userID owns the organization.
func (o *Organization) IsOwnedBy(userID id.UserID) bool {
	return !userID.IsNil() && o.OwnerID == userID
}
