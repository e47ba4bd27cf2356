package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bimatrack/bimatrack-backend/internal/identity/service"
	"github.com/bimatrack/bimatrack-backend/pkg/httputil"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
)

// UserHandler handles user management endpoints
type UserHandler struct {
	service *service.UserService
	logger  *logger.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(svc *service.UserService, log *logger.Logger) *UserHandler {
	return &UserHandler{service: svc, logger: log}
}

// Routes mounts the user management routes
func (h *UserHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/password", h.ResetPassword)
	r.Post("/{id}/status", h.SetStatus)
	return r
}

// List lists the tenant's users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	p := httputil.ParsePagination(r)

	users, total, err := h.service.List(r.Context(), p.PageSize, p.Offset())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, users, &httputil.Meta{
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    total,
	})
}

// Create provisions a new user
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(in); err != nil {
		httputil.Error(w, err)
		return
	}

	user, err := h.service.Create(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, user)
}

// Get returns a user by ID
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, user)
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=10"`
}

// ResetPassword sets a new password for a user
func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.ResetPassword(r.Context(), chi.URLParam(r, "id"), req.Password); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active disabled"`
}

// SetStatus enables or disables a user
func (h *UserHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}
