package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	auditsvc "github.com/bimatrack/bimatrack-backend/internal/audit/service"
	"github.com/bimatrack/bimatrack-backend/internal/coverage/domain"
	"github.com/bimatrack/bimatrack-backend/internal/coverage/repository"
	"github.com/bimatrack/bimatrack-backend/internal/coverage/service"
	"github.com/bimatrack/bimatrack-backend/pkg/httputil"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
)

// PermitHandler handles permit endpoints
type PermitHandler struct {
	service  *service.CoverageService
	recorder *auditsvc.Recorder
	logger   *logger.Logger
}

// NewPermitHandler creates a new permit handler
func NewPermitHandler(svc *service.CoverageService, recorder *auditsvc.Recorder, log *logger.Logger) *PermitHandler {
	return &PermitHandler{service: svc, recorder: recorder, logger: log}
}

// Routes mounts the permit routes
func (h *PermitHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/activate", h.Activate)
	r.Post("/{id}/cancel", h.Cancel)
	r.Get("/{id}/trail", h.Trail)
	r.Get("/{id}/history", h.History)
	return r
}

// List lists the tenant's permits
func (h *PermitHandler) List(w http.ResponseWriter, r *http.Request) {
	p := httputil.ParsePagination(r)
	f := repository.PermitListFilter{
		VehicleID:  r.URL.Query().Get("vehicle_id"),
		PermitType: r.URL.Query().Get("permit_type"),
		Status:     r.URL.Query().Get("status"),
	}

	permits, total, err := h.service.ListPermits(r.Context(), f, p.PageSize, p.Offset())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, permits, &httputil.Meta{
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    total,
	})
}

// Create drafts a new permit
func (h *PermitHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.PermitInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(in); err != nil {
		httputil.Error(w, err)
		return
	}

	p, err := h.service.CreatePermitDraft(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, p)
}

// Get returns a permit by ID
func (h *PermitHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPermit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, p)
}

// Update edits a draft permit
func (h *PermitHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.PermitInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(in); err != nil {
		httputil.Error(w, err)
		return
	}

	p, err := h.service.UpdatePermitDraft(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, p)
}

// Activate activates a draft permit
func (h *PermitHandler) Activate(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.ActivatePermit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, p)
}

// Cancel cancels a permit with a reason
func (h *PermitHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	p, err := h.service.CancelPermit(r.Context(), chi.URLParam(r, "id"), req.Reason, req.Note)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, p)
}

// Trail returns the permit's audit trail
func (h *PermitHandler) Trail(w http.ResponseWriter, r *http.Request) {
	p := httputil.ParsePagination(r)

	entries, total, err := h.recorder.ListTrail(r.Context(), domain.EntityKindPermit, chi.URLParam(r, "id"), p.PageSize, p.Offset())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, entries, &httputil.Meta{
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    total,
	})
}

// History returns the permit's version history
func (h *PermitHandler) History(w http.ResponseWriter, r *http.Request) {
	records, err := h.recorder.ListHistory(r.Context(), domain.EntityKindPermit, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, records)
}
