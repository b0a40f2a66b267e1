package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	t.Run("canonical order and severities", func(t *testing.T) {
		want := []struct {
			id  RuleID
			sev Severity
		}{
			{ConsentValidity, SeverityHigh},
			{PurposeLimitation, SeverityHigh},
			{DataMinimization, SeverityMedium},
			{RetentionPolicy, SeverityMedium},
			{AccessControl, SeverityCritical},
			{AuditTrail, SeverityHigh},
			{RevocationHandling, SeverityCritical},
			{ExcessiveRequests, SeverityMedium},
		}
		got := c.Rules()
		require.Len(t, got, len(want))
		for i, w := range want {
			assert.Equal(t, w.id, got[i].ID)
			assert.Equal(t, w.sev, got[i].Severity)
			assert.NotEmpty(t, got[i].Name)
			assert.NotEmpty(t, got[i].Description)
		}
	})

	t.Run("same instance across calls", func(t *testing.T) {
		assert.Same(t, c, Default())
	})

	t.Run("returned slice cannot mutate the catalog", func(t *testing.T) {
		rules := c.Rules()
		rules[0].Severity = SeverityLow
		r, ok := c.Lookup(ConsentValidity)
		require.True(t, ok)
		assert.Equal(t, SeverityHigh, r.Severity)
	})

	t.Run("unknown ids are reported", func(t *testing.T) {
		_, ok := c.Lookup("PRIVACY_BREACH")
		assert.False(t, ok)
		assert.Panics(t, func() { c.MustLookup("PRIVACY_BREACH") })
	})
}

func TestSeverity(t *testing.T) {
	assert.Equal(t, 20, SeverityCritical.Weight())
	assert.Equal(t, 15, SeverityHigh.Weight())
	assert.Equal(t, 10, SeverityMedium.Weight())
	assert.Equal(t, 5, SeverityLow.Weight())
	assert.Panics(t, func() { Severity("SEVERE").Weight() })

	assert.True(t, SeverityCritical.Escalates())
	assert.True(t, SeverityHigh.Escalates())
	assert.False(t, SeverityMedium.Escalates())
	assert.False(t, SeverityLow.Escalates())

	sev, err := ParseSeverity("HIGH")
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, sev)
	_, err = ParseSeverity("high")
	assert.Error(t, err)
}
