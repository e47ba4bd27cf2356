// Package handler exposes the report endpoints.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bimatrack/bimatrack-backend/internal/reports/service"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/httputil"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
)

// ReportHandler handles report endpoints
type ReportHandler struct {
	service *service.ReportService
	logger  *logger.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(svc *service.ReportService, log *logger.Logger) *ReportHandler {
	return &ReportHandler{service: svc, logger: log}
}

// Routes mounts the report routes
func (h *ReportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/policies", h.Policies)
	r.Get("/expiring", h.Expiring)
	r.Get("/registrations", h.Registrations)
	r.Get("/payments", h.PaymentsLedger)
	return r
}

// Policies reports policies by status
func (h *ReportHandler) Policies(w http.ResponseWriter, r *http.Request) {
	p := httputil.ParsePagination(r)
	status := r.URL.Query().Get("status")

	rows, total, err := h.service.PoliciesByStatus(r.Context(), status, p.PageSize, p.Offset())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, rows, &httputil.Meta{
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    total,
	})
}

// Expiring reports records ending within the window
func (h *ReportHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.Error(w, errors.Validation(map[string]string{"days": "must be an integer"}))
			return
		}
		days = n
	}

	rows, err := h.service.ExpiringRecords(r.Context(), time.Now().UTC(), days)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rows)
}

// Registrations reports vehicles registered inside the range
func (h *ReportHandler) Registrations(w http.ResponseWriter, r *http.Request) {
	p := httputil.ParsePagination(r)
	from, to, err := parseRange(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	rows, total, err := h.service.RegistrationsInRange(r.Context(), from, to, p.PageSize, p.Offset())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, rows, &httputil.Meta{
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    total,
	})
}

// PaymentsLedger reports payments received inside the range
func (h *ReportHandler) PaymentsLedger(w http.ResponseWriter, r *http.Request) {
	p := httputil.ParsePagination(r)
	from, to, err := parseRange(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.PaymentsLedger(r.Context(), from, to, p.PageSize, p.Offset())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, result, &httputil.Meta{
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    result.Total,
	})
}

// parseRange reads the from/to query parameters as calendar dates. The to
// day is inclusive.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	rawFrom := r.URL.Query().Get("from")
	rawTo := r.URL.Query().Get("to")
	if rawFrom == "" || rawTo == "" {
		return time.Time{}, time.Time{}, errors.Validation(map[string]string{
			"from": "from and to dates are required",
		})
	}

	from, err := time.ParseInLocation("2006-01-02", rawFrom, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Validation(map[string]string{"from": "must be a date in YYYY-MM-DD form"})
	}
	to, err := time.ParseInLocation("2006-01-02", rawTo, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Validation(map[string]string{"to": "must be a date in YYYY-MM-DD form"})
	}
	return from, to.AddDate(0, 0, 1), nil
}
