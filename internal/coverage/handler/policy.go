// Package handler exposes the policy, permit and payment endpoints.
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

// PolicyHandler handles policy endpoints
type PolicyHandler struct {
	service  *service.CoverageService
	recorder *auditsvc.Recorder
	logger   *logger.Logger
}

// NewPolicyHandler creates a new policy handler
func NewPolicyHandler(svc *service.CoverageService, recorder *auditsvc.Recorder, log *logger.Logger) *PolicyHandler {
	return &PolicyHandler{service: svc, recorder: recorder, logger: log}
}

// Routes mounts the policy routes
func (h *PolicyHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/submit", h.Submit)
	r.Post("/{id}/activate", h.Activate)
	r.Post("/{id}/cancel", h.Cancel)
	r.Post("/{id}/renew", h.Renew)
	r.Get("/{id}/trail", h.Trail)
	r.Get("/{id}/history", h.History)
	r.Get("/{id}/payments", h.ListPayments)
	r.Post("/{id}/payments", h.RecordPayment)
	return r
}

// List lists the tenant's policies
func (h *PolicyHandler) List(w http.ResponseWriter, r *http.Request) {
	p := httputil.ParsePagination(r)
	f := repository.ListFilter{
		VehicleID: r.URL.Query().Get("vehicle_id"),
		Status:    r.URL.Query().Get("status"),
	}

	policies, total, err := h.service.ListPolicies(r.Context(), f, p.PageSize, p.Offset())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, policies, &httputil.Meta{
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    total,
	})
}

// Create drafts a new policy
func (h *PolicyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.PolicyInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(in); err != nil {
		httputil.Error(w, err)
		return
	}

	p, err := h.service.CreatePolicyDraft(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, p)
}

// Get returns a policy by ID
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPolicy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, p)
}

// Update edits a draft policy
func (h *PolicyHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.PolicyInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(in); err != nil {
		httputil.Error(w, err)
		return
	}

	p, err := h.service.UpdatePolicyDraft(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, p)
}

// Submit moves a draft policy to pending payment
func (h *PolicyHandler) Submit(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.SubmitPolicy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, p)
}

// Activate activates a fully paid policy
func (h *PolicyHandler) Activate(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.ActivatePolicy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, p)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required"`
	Note   string `json:"note,omitempty" validate:"max=2000"`
}

// Cancel cancels a policy with a reason
func (h *PolicyHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	p, err := h.service.CancelPolicy(r.Context(), chi.URLParam(r, "id"), req.Reason, req.Note)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, p)
}

// Renew drafts the successor of a policy
func (h *PolicyHandler) Renew(w http.ResponseWriter, r *http.Request) {
	var in service.RenewalInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}

	p, err := h.service.RenewPolicy(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, p)
}

// Trail returns the policy's audit trail
func (h *PolicyHandler) Trail(w http.ResponseWriter, r *http.Request) {
	p := httputil.ParsePagination(r)

	entries, total, err := h.recorder.ListTrail(r.Context(), domain.EntityKindPolicy, chi.URLParam(r, "id"), p.PageSize, p.Offset())
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

// History returns the policy's version history
func (h *PolicyHandler) History(w http.ResponseWriter, r *http.Request) {
	records, err := h.recorder.ListHistory(r.Context(), domain.EntityKindPolicy, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, records)
}

type paymentsResponse struct {
	Payments      []domain.Payment `json:"payments"`
	VerifiedTotal string           `json:"verified_total"`
}

// ListPayments returns a policy's payments and verified total
func (h *PolicyHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, verified, err := h.service.ListPayments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, paymentsResponse{
		Payments:      payments,
		VerifiedTotal: verified.String(),
	})
}

// RecordPayment records a payment against a policy
func (h *PolicyHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var in service.PaymentInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(in); err != nil {
		httputil.Error(w, err)
		return
	}

	payment, err := h.service.RecordPayment(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, payment)
}
