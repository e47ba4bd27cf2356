package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bimatrack/bimatrack-backend/internal/tenants/domain"
	"github.com/bimatrack/bimatrack-backend/internal/tenants/service"
	"github.com/bimatrack/bimatrack-backend/pkg/httputil"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
)

// TenantHandler handles tenant administration endpoints
type TenantHandler struct {
	service *service.TenantService
	logger  *logger.Logger
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(svc *service.TenantService, log *logger.Logger) *TenantHandler {
	return &TenantHandler{service: svc, logger: log}
}

// Routes mounts the tenant admin routes
func (h *TenantHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/suspend", h.Suspend)
	r.Post("/{id}/reinstate", h.Reinstate)
	r.Put("/{id}/settings", h.UpdateSettings)
	return r
}

// List lists all tenants
func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	p := httputil.ParsePagination(r)

	tenants, total, err := h.service.List(r.Context(), p.PageSize, p.Offset())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, tenants, &httputil.Meta{
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    total,
	})
}

// Create provisions a new tenant
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(in); err != nil {
		httputil.Error(w, err)
		return
	}

	t, err := h.service.Create(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, t)
}

// Get returns a tenant by ID
func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, t)
}

// Suspend suspends a tenant
func (h *TenantHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Suspend(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

// Reinstate reactivates a suspended tenant
func (h *TenantHandler) Reinstate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reinstate(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

// UpdateSettings replaces a tenant's settings
func (h *TenantHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.Settings
	if err := httputil.DecodeJSON(r, &settings); err != nil {
		httputil.Error(w, err)
		return
	}

	t, err := h.service.UpdateSettings(r.Context(), chi.URLParam(r, "id"), settings)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, t)
}
