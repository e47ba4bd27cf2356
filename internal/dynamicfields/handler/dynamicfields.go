// Package handler exposes the dynamic field endpoints.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bimatrack/bimatrack-backend/internal/dynamicfields/service"
	"github.com/bimatrack/bimatrack-backend/pkg/httputil"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
)

// DynamicFieldHandler handles dynamic field endpoints
type DynamicFieldHandler struct {
	service *service.DynamicFieldService
	logger  *logger.Logger
}

// NewDynamicFieldHandler creates a new dynamic field handler
func NewDynamicFieldHandler(svc *service.DynamicFieldService, log *logger.Logger) *DynamicFieldHandler {
	return &DynamicFieldHandler{service: svc, logger: log}
}

// Routes mounts the definition management routes
func (h *DynamicFieldHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListDefinitions)
	r.Post("/", h.CreateDefinition)
	r.Put("/{id}", h.UpdateDefinition)
	r.Post("/{id}/active", h.SetActive)
	r.Delete("/{id}", h.DeleteDefinition)
	return r
}

// ValueRoutes mounts the per-entity value routes, keyed by entity kind and
// entity ID in the path.
func (h *DynamicFieldHandler) ValueRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{entityKind}/{entityID}", h.listValues)
	r.Put("/{entityKind}/{entityID}", h.setValue)
	r.Delete("/{entityKind}/{entityID}/{definitionID}", h.clearValue)
	return r
}

// ListDefinitions lists the definitions for one entity kind
func (h *DynamicFieldHandler) ListDefinitions(w http.ResponseWriter, r *http.Request) {
	entityKind := r.URL.Query().Get("entity_kind")
	activeOnly := r.URL.Query().Get("include_inactive") != "true"

	defs, err := h.service.ListDefinitions(r.Context(), entityKind, activeOnly)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, defs)
}

// CreateDefinition declares a new dynamic field
func (h *DynamicFieldHandler) CreateDefinition(w http.ResponseWriter, r *http.Request) {
	var in service.DefinitionInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(in); err != nil {
		httputil.Error(w, err)
		return
	}

	d, err := h.service.CreateDefinition(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, d)
}

// UpdateDefinition changes a definition's mutable attributes
func (h *DynamicFieldHandler) UpdateDefinition(w http.ResponseWriter, r *http.Request) {
	var in service.DefinitionInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(in); err != nil {
		httputil.Error(w, err)
		return
	}

	d, err := h.service.UpdateDefinition(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, d)
}

type activeRequest struct {
	Active bool `json:"active"`
}

// SetActive toggles a definition's visibility on entry forms
func (h *DynamicFieldHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	d, err := h.service.SetDefinitionActive(r.Context(), chi.URLParam(r, "id"), req.Active)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, d)
}

// DeleteDefinition retires a definition
func (h *DynamicFieldHandler) DeleteDefinition(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteDefinition(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *DynamicFieldHandler) listValues(w http.ResponseWriter, r *http.Request) {
	values, err := h.service.ListValues(r.Context(), chi.URLParam(r, "entityKind"), chi.URLParam(r, "entityID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, values)
}

func (h *DynamicFieldHandler) setValue(w http.ResponseWriter, r *http.Request) {
	var in service.SetValueInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(in); err != nil {
		httputil.Error(w, err)
		return
	}

	v, err := h.service.SetValue(r.Context(), chi.URLParam(r, "entityKind"), chi.URLParam(r, "entityID"), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, v)
}

func (h *DynamicFieldHandler) clearValue(w http.ResponseWriter, r *http.Request) {
	err := h.service.ClearValue(r.Context(), chi.URLParam(r, "entityKind"), chi.URLParam(r, "entityID"), chi.URLParam(r, "definitionID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}
