// Package domain holds identifier primitives shared across modules.
//
// Every identifier is a distinct named type over uuid.UUID so that an
// organization ID can never be passed where an audit ID is expected.
// Construct from external input with the Parse* functions; they reject empty,
// malformed, and nil UUIDs with CodeInvalidInput.
package domain

import (
	"github.com/google/uuid"

	dErrors "truconn/pkg/domain-errors"
)

type (
	UserID          uuid.UUID
	OrganizationID  uuid.UUID
	AuditID         uuid.UUID
	ViolationID     uuid.UUID
	AccessRequestID uuid.UUID
	ConsentTypeID   uuid.UUID
)

func (id UserID) String() string          { return uuid.UUID(id).String() }
func (id OrganizationID) String() string  { return uuid.UUID(id).String() }
func (id AuditID) String() string         { return uuid.UUID(id).String() }
func (id ViolationID) String() string     { return uuid.UUID(id).String() }
func (id AccessRequestID) String() string { return uuid.UUID(id).String() }
func (id ConsentTypeID) String() string   { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool          { return uuid.UUID(id) == uuid.Nil }
func (id OrganizationID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id AuditID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id ViolationID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id AccessRequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ConsentTypeID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets typed IDs serialize as plain UUID strings in JSON.
func (id UserID) MarshalText() ([]byte, error)          { return uuid.UUID(id).MarshalText() }
func (id OrganizationID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id AuditID) MarshalText() ([]byte, error)         { return uuid.UUID(id).MarshalText() }
func (id ViolationID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id AccessRequestID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ConsentTypeID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }

// UnmarshalText accepts the same form MarshalText produces.
func (id *UserID) UnmarshalText(b []byte) error          { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *OrganizationID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AuditID) UnmarshalText(b []byte) error         { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ViolationID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AccessRequestID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ConsentTypeID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return parsed, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

func ParseOrganizationID(s string) (OrganizationID, error) {
	u, err := parseUUID(s, "organization ID")
	return OrganizationID(u), err
}

func ParseAuditID(s string) (AuditID, error) {
	u, err := parseUUID(s, "audit ID")
	return AuditID(u), err
}

func ParseViolationID(s string) (ViolationID, error) {
	u, err := parseUUID(s, "violation ID")
	return ViolationID(u), err
}

func ParseAccessRequestID(s string) (AccessRequestID, error) {
	u, err := parseUUID(s, "access request ID")
	return AccessRequestID(u), err
}

func ParseConsentTypeID(s string) (ConsentTypeID, error) {
	u, err := parseUUID(s, "consent type ID")
	return ConsentTypeID(u), err
}
