package ports

import (
	"context"
	"time"

	"truconn/internal/compliance/models"
	id "truconn/pkg/domain"
)

// DataAccessPort is the engine's read-only view of access requests and consent
// state. The request-management and consent subsystems own the data; the
// engine never mutates it through this port.
//
//go:generate mockgen -source=access.go -destination=mocks/access_mock.go -package=mocks
type DataAccessPort interface {
	// FetchRequests returns the organization's access requests ordered by
	// requested_at. A nil status returns every request.
	FetchRequests(ctx context.Context, orgID id.OrganizationID, status *models.RequestStatus) ([]models.AccessRequest, error)

	// FetchConsent resolves the consent row for (user, consent type).
	// Returns nil, nil when the user never recorded one.
	FetchConsent(ctx context.Context, userID id.UserID, consentTypeID id.ConsentTypeID) (*models.UserConsent, error)

	// FetchRequestsSince returns requests with requested_at >= since.
	FetchRequestsSince(ctx context.Context, orgID id.OrganizationID, since time.Time) ([]models.AccessRequest, error)
}
