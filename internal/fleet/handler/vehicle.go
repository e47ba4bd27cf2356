package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bimatrack/bimatrack-backend/internal/fleet/service"
	"github.com/bimatrack/bimatrack-backend/pkg/httputil"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
)

// VehicleHandler handles vehicle endpoints
type VehicleHandler struct {
	service *service.FleetService
	logger  *logger.Logger
}

// NewVehicleHandler creates a new vehicle handler
func NewVehicleHandler(svc *service.FleetService, log *logger.Logger) *VehicleHandler {
	return &VehicleHandler{service: svc, logger: log}
}

// Routes mounts the vehicle routes
func (h *VehicleHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/status", h.SetStatus)
	r.Get("/{id}/ownerships", h.OwnershipTimeline)
	r.Post("/{id}/ownerships/transfer", h.TransferOwnership)
	return r
}

// List lists the tenant's vehicles
func (h *VehicleHandler) List(w http.ResponseWriter, r *http.Request) {
	p := httputil.ParsePagination(r)
	status := r.URL.Query().Get("status")

	vehicles, total, err := h.service.ListVehicles(r.Context(), status, p.PageSize, p.Offset())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, vehicles, &httputil.Meta{
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    total,
	})
}

// Create registers a new vehicle
func (h *VehicleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.VehicleInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(in); err != nil {
		httputil.Error(w, err)
		return
	}

	v, err := h.service.CreateVehicle(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, v)
}

// Get returns a vehicle by ID
func (h *VehicleHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.GetVehicle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, v)
}

// Update modifies a vehicle
func (h *VehicleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.VehicleInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(in); err != nil {
		httputil.Error(w, err)
		return
	}

	v, err := h.service.UpdateVehicle(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, v)
}

// Delete soft-deletes a vehicle
func (h *VehicleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteVehicle(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

type vehicleStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended retired"`
}

// SetStatus moves a vehicle between statuses
func (h *VehicleHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req vehicleStatusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	v, err := h.service.SetVehicleStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, v)
}

// OwnershipTimeline returns a vehicle's ownership history
func (h *VehicleHandler) OwnershipTimeline(w http.ResponseWriter, r *http.Request) {
	timeline, err := h.service.OwnershipTimeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, timeline)
}

type transferRequest struct {
	CustomerID string `json:"customer_id" validate:"required,uuid"`
}

// TransferOwnership moves a vehicle to a new owner
func (h *VehicleHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	o, err := h.service.TransferOwnership(r.Context(), chi.URLParam(r, "id"), req.CustomerID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, o)
}
