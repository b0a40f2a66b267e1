package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names a compliance lifecycle event.
type EventType string

const (
	EventScanCompleted      EventType = "scan_completed"
	EventAuditRecorded      EventType = "audit_recorded"
	EventViolationReported  EventType = "violation_reported"
	EventAuditStatusChanged EventType = "audit_status_changed"
	EventViolationResolved  EventType = "violation_resolved"
)

// Event is emitted from the compliance service and written to the outbox in
// the same transaction as the records it describes. Keep it transport-agnostic
// so the outbox relay can forward it unchanged.
type Event struct {
	ID             uuid.UUID
	Type           EventType
	Timestamp      time.Time
	OrganizationID string
	// Subject is the record the event is about (audit or violation ID).
	Subject  string
	RuleID   string
	Severity string
	// Decision carries the outcome: a new status, a risk level, "created".
	Decision  string
	RiskScore *int
	RequestID string
	ActorID   string
}

// Store persists events. Implementations must honor a transaction carried in
// ctx so events commit or roll back with the domain writes.
type Store interface {
	Append(ctx context.Context, event Event) error
}
