package compliance

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the shared scenario context these steps use.
type TestContext interface {
	Do(ctx context.Context, method, path string, body any, headers map[string]string) error
	UseToken(token string)
	Owner() string
	LastStatus() int
	LastHeader(key string) string
	Field(path string) (any, error)
	Remember(key string, v any)
	Recall(key string) (any, bool)
}

// RegisterSteps registers compliance scan and report steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	s := &complianceSteps{tc: tc}

	ctx.Step(`^I am the organization owner$`, s.iAmTheOwner)
	ctx.Step(`^I am not authenticated$`, s.iAmNotAuthenticated)
	ctx.Step(`^I run a compliance scan$`, s.runScan)
	ctx.Step(`^I fetch the latest report$`, s.fetchReport)
	ctx.Step(`^I fetch the latest report for (\d+) days$`, s.fetchReportForDays)
	ctx.Step(`^I set audit "([^"]*)" to status "([^"]*)"$`, s.setAuditStatus)
	ctx.Step(`^the response status should be (\d+)$`, s.statusShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, s.responseShouldContain)
	ctx.Step(`^the response header "([^"]*)" should be set$`, s.headerShouldBeSet)
	ctx.Step(`^I remember "([^"]*)" as "([^"]*)"$`, s.rememberField)
	ctx.Step(`^"([^"]*)" should equal the remembered "([^"]*)"$`, s.fieldShouldEqualRemembered)
}

type complianceSteps struct {
	tc TestContext
}

func (s *complianceSteps) iAmTheOwner(context.Context) error {
	s.tc.UseToken(s.tc.Owner())
	return nil
}

func (s *complianceSteps) iAmNotAuthenticated(context.Context) error {
	s.tc.UseToken("")
	return nil
}

func (s *complianceSteps) runScan(ctx context.Context) error {
	return s.tc.Do(ctx, http.MethodPost, "/compliance/scan", nil, nil)
}

func (s *complianceSteps) fetchReport(ctx context.Context) error {
	return s.tc.Do(ctx, http.MethodGet, "/compliance/reports", nil, nil)
}

func (s *complianceSteps) fetchReportForDays(ctx context.Context, days int) error {
	return s.tc.Do(ctx, http.MethodGet, fmt.Sprintf("/compliance/reports?days=%d", days), nil, nil)
}

func (s *complianceSteps) setAuditStatus(ctx context.Context, auditID, status string) error {
	return s.tc.Do(ctx, http.MethodPatch, "/compliance/audits/"+auditID, map[string]string{"status": status}, nil)
}

func (s *complianceSteps) statusShouldBe(_ context.Context, want int) error {
	if got := s.tc.LastStatus(); got != want {
		return fmt.Errorf("expected status %d, got %d", want, got)
	}
	return nil
}

func (s *complianceSteps) responseShouldContain(_ context.Context, field string) error {
	_, err := s.tc.Field(field)
	return err
}

func (s *complianceSteps) headerShouldBeSet(_ context.Context, key string) error {
	if s.tc.LastHeader(key) == "" {
		return fmt.Errorf("header %s not set", key)
	}
	return nil
}

func (s *complianceSteps) rememberField(_ context.Context, field, key string) error {
	v, err := s.tc.Field(field)
	if err != nil {
		return err
	}
	s.tc.Remember(key, v)
	return nil
}

func (s *complianceSteps) fieldShouldEqualRemembered(_ context.Context, field, key string) error {
	got, err := s.tc.Field(field)
	if err != nil {
		return err
	}
	want, ok := s.tc.Recall(key)
	if !ok {
		return fmt.Errorf("nothing remembered as %q", key)
	}
	if got != want {
		return fmt.Errorf("%s: expected %v, got %v", field, want, got)
	}
	return nil
}
