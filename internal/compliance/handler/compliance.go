// Package handler exposes the compliance evaluation endpoints.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bimatrack/bimatrack-backend/internal/compliance/service"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/httputil"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
)

// ComplianceHandler handles compliance endpoints
type ComplianceHandler struct {
	service *service.ComplianceService
	logger  *logger.Logger
}

// NewComplianceHandler creates a new compliance handler
func NewComplianceHandler(svc *service.ComplianceService, log *logger.Logger) *ComplianceHandler {
	return &ComplianceHandler{service: svc, logger: log}
}

// Routes mounts the compliance routes
func (h *ComplianceHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/summary", h.Summary)
	r.Get("/vehicles/{id}", h.VehicleStatus)
	return r
}

// VehicleStatus evaluates one vehicle's compliance
func (h *ComplianceHandler) VehicleStatus(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	status, err := h.service.VehicleStatus(r.Context(), chi.URLParam(r, "id"), asOf)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, status)
}

// Summary aggregates compliance across the tenant's fleet
func (h *ComplianceHandler) Summary(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	summary, err := h.service.TenantSummary(r.Context(), asOf)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, summary)
}

// parseAsOf reads the optional as_of query parameter, defaulting to today.
func parseAsOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return time.Time{}, errors.Validation(map[string]string{"as_of": "must be a date in YYYY-MM-DD form"})
	}
	return t, nil
}
