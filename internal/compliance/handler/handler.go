// Package handler exposes the compliance engine over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"truconn/internal/compliance/models"
	"truconn/internal/organization"
	id "truconn/pkg/domain"
	dErrors "truconn/pkg/domain-errors"
	"truconn/pkg/platform/httputil"
	request "truconn/pkg/platform/middleware/request"
)

const (
	defaultLatestWindowDays = 30
	maxLatestWindowDays     = 365
)

// Service defines the compliance operations the handler needs.
//
//go:generate mockgen -source=handler.go -destination=mocks/compliance-mocks.go -package=mocks Service
type Service interface {
	CallerOrganization(ctx context.Context) (*organization.Organization, error)
	Run(ctx context.Context, orgID id.OrganizationID) (*models.Report, error)
	Latest(ctx context.Context, orgID id.OrganizationID, windowDays int) (*models.Report, error)
	Reports(ctx context.Context, orgID *id.OrganizationID) (*models.OrganizationReport, error)
	GetAudit(ctx context.Context, orgID id.OrganizationID, auditID id.AuditID) (*models.Audit, error)
	PatchAuditStatus(ctx context.Context, orgID id.OrganizationID, auditID id.AuditID, status string) (*models.Audit, error)
	ResolveViolation(ctx context.Context, orgID id.OrganizationID, violationID id.ViolationID, resolved bool, notes string) (*models.Violation, error)
}

// Handler serves the /compliance routes. Authentication middleware must run
// first; the handler only reads the caller from the request context.
type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register mounts the compliance routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/compliance", func(r chi.Router) {
		r.Post("/scan", h.handleRunScan)
		r.Get("/scan", h.handleLatestScan)
		r.Get("/reports", h.handleReports)
		r.Get("/reports/{org_id}", h.handleReports)
		r.Get("/audits/{id}", h.handleGetAudit)
		r.Patch("/audits/{id}", h.handlePatchAudit)
		r.Patch("/violations/{id}", h.handleResolveViolation)
	})
}

type patchAuditRequest struct {
	Status string `json:"status"`
}

type resolveViolationRequest struct {
	Resolved        *bool  `json:"resolved"`
	ResolutionNotes string `json:"resolution_notes"`
}

func (h *Handler) callerOrganization(w http.ResponseWriter, r *http.Request) (*organization.Organization, bool) {
	org, err := h.service.CallerOrganization(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "compliance caller rejected",
			"request_id", request.GetRequestID(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, err)
		return nil, false
	}
	return org, true
}

func (h *Handler) handleRunScan(w http.ResponseWriter, r *http.Request) {
	org, ok := h.callerOrganization(w, r)
	if !ok {
		return
	}
	report, err := h.service.Run(r.Context(), org.ID)
	if err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleLatestScan(w http.ResponseWriter, r *http.Request) {
	org, ok := h.callerOrganization(w, r)
	if !ok {
		return
	}
	days := defaultLatestWindowDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLatestWindowDays {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "days must be between 1 and 365"))
			return
		}
		days = n
	}
	report, err := h.service.Latest(r.Context(), org.ID, days)
	if err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleReports(w http.ResponseWriter, r *http.Request) {
	var orgID *id.OrganizationID
	if raw := chi.URLParam(r, "org_id"); raw != "" {
		parsed, err := id.ParseOrganizationID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		orgID = &parsed
	}
	report, err := h.service.Reports(r.Context(), orgID)
	if err != nil {
		h.logFailure(r, "failed to build compliance report", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	auditID, err := id.ParseAuditID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	org, ok := h.callerOrganization(w, r)
	if !ok {
		return
	}
	a, err := h.service.GetAudit(r.Context(), org.ID, auditID)
	if err != nil {
		h.logFailure(r, "failed to load audit", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) handlePatchAudit(w http.ResponseWriter, r *http.Request) {
	auditID, err := id.ParseAuditID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	org, ok := h.callerOrganization(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[patchAuditRequest](w, r, h.logger, request.GetRequestID(r.Context()))
	if !ok {
		return
	}
	a, err := h.service.PatchAuditStatus(r.Context(), org.ID, auditID, req.Status)
	if err != nil {
		h.logFailure(r, "failed to update audit status", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) handleResolveViolation(w http.ResponseWriter, r *http.Request) {
	violationID, err := id.ParseViolationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	org, ok := h.callerOrganization(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[resolveViolationRequest](w, r, h.logger, request.GetRequestID(r.Context()))
	if !ok {
		return
	}
	if req.Resolved == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "resolved is required"))
		return
	}
	v, err := h.service.ResolveViolation(r.Context(), org.ID, violationID, *req.Resolved, req.ResolutionNotes)
	if err != nil {
		h.logFailure(r, "failed to update violation", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

// logFailure logs server-side failures; client errors are not worth a line.
func (h *Handler) logFailure(r *http.Request, msg string, err error) {
	if httputil.StatusFor(dErrors.CodeOf(err)) < http.StatusInternalServerError {
		return
	}
	h.logger.ErrorContext(r.Context(), msg,
		"request_id", request.GetRequestID(r.Context()),
		"error", err,
	)
}
