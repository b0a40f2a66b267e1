package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"truconn/internal/compliance/handler/mocks"
	"truconn/internal/compliance/models"
	"truconn/internal/compliance/rules"
	"truconn/internal/organization"
	id "truconn/pkg/domain"
	dErrors "truconn/pkg/domain-errors"
)

type ComplianceHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
	org     *organization.Organization
}

func TestComplianceHandlerSuite(t *testing.T) {
	suite.Run(t, new(ComplianceHandlerSuite))
}

func (s *ComplianceHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.router = chi.NewRouter()
	New(s.service, logger).Register(s.router)
	s.org = &organization.Organization{ID: id.OrganizationID(uuid.New()), Name: "Acme Lending"}
}

func (s *ComplianceHandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *ComplianceHandlerSuite) decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (s *ComplianceHandlerSuite) sampleReport() *models.Report {
	return &models.Report{
		RiskScore:       35,
		RiskLevel:       "MODERATE",
		TotalViolations: 2,
		CriticalCount:   1,
		HighCount:       1,
		Audits: []models.Audit{{
			ID:         id.AuditID(uuid.New()),
			OrgID:      s.org.ID,
			RuleID:     rules.AccessControl,
			Severity:   rules.SeverityCritical,
			Status:     models.AuditPending,
			Details:    models.Details{},
			DetectedAt: time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC),
		}},
		Violations: []models.Violation{},
	}
}

func (s *ComplianceHandlerSuite) TestRunScan() {
	s.Run("returns the report", func() {
		s.service.EXPECT().CallerOrganization(gomock.Any()).Return(s.org, nil)
		s.service.EXPECT().Run(gomock.Any(), s.org.ID).Return(s.sampleReport(), nil)

		w := s.do(http.MethodPost, "/compliance/scan", nil)
		s.Equal(http.StatusOK, w.Code)
		body := s.decode(w)
		s.Equal(float64(35), body["risk_score"])
		s.Equal(float64(2), body["total_violations"])
		s.Equal(float64(1), body["critical_count"])
		audits := body["audits"].([]any)
		s.Len(audits, 1)
		s.Equal("ACCESS_CONTROL", audits[0].(map[string]any)["rule_id"])
		s.Equal(s.org.ID.String(), audits[0].(map[string]any)["organization_id"])
		s.NotNil(body["violations"])
	})

	s.Run("data failure surfaces the message", func() {
		s.service.EXPECT().CallerOrganization(gomock.Any()).Return(s.org, nil)
		s.service.EXPECT().Run(gomock.Any(), s.org.ID).
			Return(nil, dErrors.Wrap(io.ErrUnexpectedEOF, dErrors.CodeInternal, "compliance scan failed"))

		w := s.do(http.MethodPost, "/compliance/scan", nil)
		s.Equal(http.StatusInternalServerError, w.Code)
		s.Equal(map[string]any{"error": "compliance scan failed: unexpected EOF"}, s.decode(w))
	})

	s.Run("caller without organization is forbidden", func() {
		s.service.EXPECT().CallerOrganization(gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "caller is not an organization"))

		w := s.do(http.MethodPost, "/compliance/scan", nil)
		s.Equal(http.StatusForbidden, w.Code)
		s.Equal("forbidden", s.decode(w)["error"])
	})
}

func (s *ComplianceHandlerSuite) TestLatestScan() {
	s.Run("defaults to thirty days", func() {
		s.service.EXPECT().CallerOrganization(gomock.Any()).Return(s.org, nil)
		s.service.EXPECT().Latest(gomock.Any(), s.org.ID, 30).Return(s.sampleReport(), nil)

		w := s.do(http.MethodGet, "/compliance/scan", nil)
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("honours the days parameter", func() {
		s.service.EXPECT().CallerOrganization(gomock.Any()).Return(s.org, nil)
		s.service.EXPECT().Latest(gomock.Any(), s.org.ID, 7).Return(s.sampleReport(), nil)

		w := s.do(http.MethodGet, "/compliance/scan?days=7", nil)
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("rejects an out of range window", func() {
		s.service.EXPECT().CallerOrganization(gomock.Any()).Return(s.org, nil)

		w := s.do(http.MethodGet, "/compliance/scan?days=0", nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *ComplianceHandlerSuite) TestReports() {
	s.Run("own organization", func() {
		s.service.EXPECT().Reports(gomock.Any(), (*id.OrganizationID)(nil)).Return(&models.OrganizationReport{
			Organization: models.OrganizationSummary{ID: s.org.ID, Name: s.org.Name},
			Statistics:   models.Statistics{TotalAudits: 3, PendingAudits: 2, ResolvedAudits: 1},
			Audits:       []models.Audit{},
			Violations:   []models.Violation{},
		}, nil)

		w := s.do(http.MethodGet, "/compliance/reports", nil)
		s.Equal(http.StatusOK, w.Code)
		body := s.decode(w)
		s.Equal("Acme Lending", body["organization"].(map[string]any)["name"])
		s.Equal(float64(2), body["statistics"].(map[string]any)["pending_audits"])
	})

	s.Run("named organization forbidden", func() {
		other := id.OrganizationID(uuid.New())
		s.service.EXPECT().Reports(gomock.Any(), gomock.Eq(&other)).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "permission denied"))

		w := s.do(http.MethodGet, "/compliance/reports/"+other.String(), nil)
		s.Equal(http.StatusForbidden, w.Code)
	})

	s.Run("malformed organization id", func() {
		w := s.do(http.MethodGet, "/compliance/reports/not-a-uuid", nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *ComplianceHandlerSuite) TestGetAudit() {
	auditID := id.AuditID(uuid.New())

	s.Run("not found", func() {
		s.service.EXPECT().CallerOrganization(gomock.Any()).Return(s.org, nil)
		s.service.EXPECT().GetAudit(gomock.Any(), s.org.ID, auditID).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "audit not found"))

		w := s.do(http.MethodGet, "/compliance/audits/"+auditID.String(), nil)
		s.Equal(http.StatusNotFound, w.Code)
		s.Equal("audit not found", s.decode(w)["error_description"])
	})

	s.Run("found", func() {
		s.service.EXPECT().CallerOrganization(gomock.Any()).Return(s.org, nil)
		s.service.EXPECT().GetAudit(gomock.Any(), s.org.ID, auditID).
			Return(&models.Audit{ID: auditID, OrgID: s.org.ID, Status: models.AuditPending}, nil)

		w := s.do(http.MethodGet, "/compliance/audits/"+auditID.String(), nil)
		s.Equal(http.StatusOK, w.Code)
		s.Equal(auditID.String(), s.decode(w)["id"])
	})
}

func (s *ComplianceHandlerSuite) TestPatchAudit() {
	auditID := id.AuditID(uuid.New())

	s.Run("applies the transition", func() {
		resolvedAt := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)
		s.service.EXPECT().CallerOrganization(gomock.Any()).Return(s.org, nil)
		s.service.EXPECT().PatchAuditStatus(gomock.Any(), s.org.ID, auditID, "RESOLVED").
			Return(&models.Audit{ID: auditID, Status: models.AuditResolved, ResolvedAt: &resolvedAt}, nil)

		w := s.do(http.MethodPatch, "/compliance/audits/"+auditID.String(), map[string]string{"status": "RESOLVED"})
		s.Equal(http.StatusOK, w.Code)
		body := s.decode(w)
		s.Equal("RESOLVED", body["status"])
		s.Equal("2025-06-16T00:00:00Z", body["resolved_at"])
	})

	s.Run("invalid status is a bad request", func() {
		s.service.EXPECT().CallerOrganization(gomock.Any()).Return(s.org, nil)
		s.service.EXPECT().PatchAuditStatus(gomock.Any(), s.org.ID, auditID, "CLOSED").
			Return(nil, dErrors.New(dErrors.CodeInvalidTransition, "invalid status value: CLOSED"))

		w := s.do(http.MethodPatch, "/compliance/audits/"+auditID.String(), map[string]string{"status": "CLOSED"})
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("invalid_transition", s.decode(w)["error"])
	})

	s.Run("unknown fields are rejected", func() {
		s.service.EXPECT().CallerOrganization(gomock.Any()).Return(s.org, nil)

		w := s.do(http.MethodPatch, "/compliance/audits/"+auditID.String(), map[string]string{"state": "RESOLVED"})
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("malformed audit id", func() {
		w := s.do(http.MethodPatch, "/compliance/audits/123", map[string]string{"status": "RESOLVED"})
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *ComplianceHandlerSuite) TestResolveViolation() {
	violationID := id.ViolationID(uuid.New())

	s.Run("records the resolution", func() {
		s.service.EXPECT().CallerOrganization(gomock.Any()).Return(s.org, nil)
		s.service.EXPECT().ResolveViolation(gomock.Any(), s.org.ID, violationID, true, "consent re-collected").
			Return(&models.Violation{ID: violationID, Resolved: true, ResolutionNotes: "consent re-collected"}, nil)

		w := s.do(http.MethodPatch, "/compliance/violations/"+violationID.String(),
			map[string]any{"resolved": true, "resolution_notes": "consent re-collected"})
		s.Equal(http.StatusOK, w.Code)
		s.Equal(true, s.decode(w)["resolved"])
	})

	s.Run("resolved is required", func() {
		s.service.EXPECT().CallerOrganization(gomock.Any()).Return(s.org, nil)

		w := s.do(http.MethodPatch, "/compliance/violations/"+violationID.String(),
			map[string]any{"resolution_notes": "n/a"})
		s.Equal(http.StatusBadRequest, w.Code)
	})
}
