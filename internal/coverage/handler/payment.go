package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bimatrack/bimatrack-backend/internal/coverage/service"
	"github.com/bimatrack/bimatrack-backend/pkg/httputil"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
)

// PaymentHandler handles standalone payment endpoints. Recording and
// listing payments lives under the policy routes.
type PaymentHandler struct {
	service *service.CoverageService
	logger  *logger.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(svc *service.CoverageService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{service: svc, logger: log}
}

// Routes mounts the payment routes
func (h *PaymentHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.Get)
	r.Post("/{id}/verify", h.Verify)
	return r
}

// Get returns a payment by ID
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, p)
}

// Verify marks a payment as verified by the acting user
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.VerifyPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, p)
}
