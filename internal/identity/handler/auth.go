package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bimatrack/bimatrack-backend/internal/identity/service"
	"github.com/bimatrack/bimatrack-backend/pkg/actor"
	"github.com/bimatrack/bimatrack-backend/pkg/config"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/httputil"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	service *service.AuthService
	cfg     config.SessionConfig
	secure  bool
	logger  *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(svc *service.AuthService, cfg config.SessionConfig, environment string, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		service: svc,
		cfg:     cfg,
		secure:  environment != config.EnvDevelopment,
		logger:  log,
	}
}

// PublicRoutes mounts the unauthenticated auth routes
func (h *AuthHandler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.Login)
	return r
}

// ProtectedRoutes mounts the session-bound auth routes
func (h *AuthHandler) ProtectedRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/logout", h.Logout)
	r.Get("/me", h.Me)
	r.Get("/csrf", h.CSRF)
	return r
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	CSRFToken string `json:"csrf_token"`
	User      any    `json:"user"`
}

// Login authenticates a user and sets the session cookie
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Authenticate(r.Context(), req.Email, req.Password, r.RemoteAddr)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     httputil.SessionCookieName,
		Value:    result.Session.ID,
		Path:     "/",
		MaxAge:   int(h.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})

	httputil.JSON(w, http.StatusOK, loginResponse{
		CSRFToken: result.CSRFToken,
		User:      result.User,
	})
}

// Logout revokes the current session and clears the cookie
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), httputil.GetSessionID(r.Context())); err != nil {
		httputil.Error(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     httputil.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})

	httputil.NoContent(w)
}

// Me returns the authenticated actor
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	act := actor.FromContext(r.Context())
	if act == nil {
		httputil.Error(w, errors.Unauthorized("authentication required"))
		return
	}
	httputil.JSON(w, http.StatusOK, act)
}

// CSRF issues a fresh CSRF token for the current session
func (h *AuthHandler) CSRF(w http.ResponseWriter, r *http.Request) {
	token, err := h.service.RefreshCSRF(httputil.GetSessionID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}
