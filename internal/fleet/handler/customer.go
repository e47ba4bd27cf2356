package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bimatrack/bimatrack-backend/internal/fleet/service"
	"github.com/bimatrack/bimatrack-backend/pkg/httputil"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
)

// CustomerHandler handles customer endpoints
type CustomerHandler struct {
	service *service.FleetService
	logger  *logger.Logger
}

// NewCustomerHandler creates a new customer handler
func NewCustomerHandler(svc *service.FleetService, log *logger.Logger) *CustomerHandler {
	return &CustomerHandler{service: svc, logger: log}
}

// Routes mounts the customer routes
func (h *CustomerHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	return r
}

// List lists the tenant's customers
func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	p := httputil.ParsePagination(r)

	customers, total, err := h.service.ListCustomers(r.Context(), p.PageSize, p.Offset())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, customers, &httputil.Meta{
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    total,
	})
}

// Create creates a new customer
func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CustomerInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(in); err != nil {
		httputil.Error(w, err)
		return
	}

	c, err := h.service.CreateCustomer(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, c)
}

// Get returns a customer by ID
func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, c)
}

// Update modifies a customer
func (h *CustomerHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.CustomerInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(in); err != nil {
		httputil.Error(w, err)
		return
	}

	c, err := h.service.UpdateCustomer(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, c)
}

// Delete soft-deletes a customer
func (h *CustomerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCustomer(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}
