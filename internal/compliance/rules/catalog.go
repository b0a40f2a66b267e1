// Package rules defines the fixed NDPR rule catalog.
//
// The catalog is built once by Default and shared read-only by the evaluator,
// the scorer, and the reconciler. Nothing in the process mutates it; lookups
// return values, never pointers into the table.
package rules

import (
	"fmt"
	"sync"
)

// Severity is the closed set of rule severities.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// ParseSeverity validates a persisted severity value.
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(s); sev {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return sev, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// Weight is the risk-score contribution of one finding at this severity.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 20
	case SeverityHigh:
		return 15
	case SeverityMedium:
		return 10
	case SeverityLow:
		return 5
	}
	panic(fmt.Sprintf("rules: weight requested for unknown severity %q", string(s)))
}

// Escalates reports whether findings at this severity open a violation report.
func (s Severity) Escalates() bool {
	return s == SeverityCritical || s == SeverityHigh
}

// RuleID identifies a catalog rule.
type RuleID string

const (
	ConsentValidity    RuleID = "CONSENT_VALIDITY"
	PurposeLimitation  RuleID = "PURPOSE_LIMITATION"
	DataMinimization   RuleID = "DATA_MINIMIZATION"
	RetentionPolicy    RuleID = "RETENTION_POLICY"
	AccessControl      RuleID = "ACCESS_CONTROL"
	AuditTrail         RuleID = "AUDIT_TRAIL"
	RevocationHandling RuleID = "REVOCATION_HANDLING"
	ExcessiveRequests  RuleID = "EXCESSIVE_REQUESTS"
)

// Rule is one catalog entry.
type Rule struct {
	ID          RuleID
	Name        string
	Description string
	Severity    Severity
}

// Catalog is an immutable, ordered rule registry.
type Catalog struct {
	ordered []Rule
	byID    map[RuleID]Rule
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the process-wide catalog, building it on first use.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog = newCatalog([]Rule{
			{ConsentValidity, "Consent Validity Check", "Ensures all data access has valid, explicit consent", SeverityHigh},
			{PurposeLimitation, "Purpose Limitation", "Data access must align with stated purpose", SeverityHigh},
			{DataMinimization, "Data Minimization", "Organizations should only request necessary data", SeverityMedium},
			{RetentionPolicy, "Data Retention Policy", "Data should not be retained beyond stated purpose", SeverityMedium},
			{AccessControl, "Access Control", "Unauthorized access attempts detected", SeverityCritical},
			{AuditTrail, "Audit Trail Completeness", "All data access must be logged and auditable", SeverityHigh},
			{RevocationHandling, "Consent Revocation Handling", "Revoked consents must be respected immediately", SeverityCritical},
			{ExcessiveRequests, "Excessive Data Requests", "Unusual pattern of data access requests detected", SeverityMedium},
		})
	})
	return defaultCatalog
}

func newCatalog(rules []Rule) *Catalog {
	c := &Catalog{
		ordered: make([]Rule, len(rules)),
		byID:    make(map[RuleID]Rule, len(rules)),
	}
	copy(c.ordered, rules)
	for _, r := range rules {
		c.byID[r.ID] = r
	}
	return c
}

// Lookup returns the rule for id.
func (c *Catalog) Lookup(id RuleID) (Rule, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// MustLookup returns the rule for id and panics on an unknown id. Only
// evaluator-produced findings reach it, and those carry catalog ids.
func (c *Catalog) MustLookup(id RuleID) Rule {
	r, ok := c.byID[id]
	if !ok {
		panic(fmt.Sprintf("rules: unknown rule id %q", string(id)))
	}
	return r
}

// Rules returns the catalog in canonical order. The slice is a copy.
func (c *Catalog) Rules() []Rule {
	out := make([]Rule, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Len is the number of rules.
func (c *Catalog) Len() int { return len(c.ordered) }
