// Package models holds rate limiting types shared by the bucket stores and
// the HTTP middleware.
package models

import (
	"fmt"
	"time"
)

// EndpointClass groups endpoints that share a limit.
type EndpointClass string

const (
	// ClassScan covers scan runs, which evaluate every rule against the
	// organization's data.
	ClassScan EndpointClass = "scan"
	// ClassWrite covers operator status changes.
	ClassWrite EndpointClass = "write"
	// ClassRead covers report and audit reads.
	ClassRead EndpointClass = "read"
)

// Limit is a sliding-window budget.
type Limit struct {
	RequestsPerWindow int
	Window            time.Duration
}

// RateLimitResult is the outcome of one bucket check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is whole seconds until a slot frees up; zero when allowed.
	RetryAfter int
}

// UserKey identifies one caller's bucket for an endpoint class.
func UserKey(class EndpointClass, userID string) string {
	return fmt.Sprintf("ratelimit:%s:user:%s", class, userID)
}

// RateLimitExceededResponse is the 429 body.
type RateLimitExceededResponse struct {
	Error      string    `json:"error"`
	Message    string    `json:"message"`
	QuotaLimit int       `json:"quota_limit"`
	QuotaReset time.Time `json:"quota_reset"`
	RetryAfter int       `json:"retry_after"`
}
