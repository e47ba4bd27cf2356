package httputil

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bimatrack/bimatrack-backend/pkg/actor"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
	"github.com/bimatrack/bimatrack-backend/pkg/session"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	SessionIDKey contextKey = "session_id"
)

// SessionCookieName is the cookie that carries the opaque session ID.
const SessionCookieName = "bimatrack_session"

// CSRFHeaderName carries the CSRF token on state-changing requests.
const CSRFHeaderName = "X-CSRF-Token"

// RequestID middleware adds a request ID to each request
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logger middleware logs HTTP requests
func Logger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)

			evt := log.Info().
				Str("request_id", GetRequestID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", duration).
				Str("remote_addr", r.RemoteAddr)

			if act := actor.FromContext(r.Context()); act != nil {
				evt = evt.Str("actor_id", act.ID)
			}

			evt.Msg("HTTP request")
		})
	}
}

// Recoverer middleware recovers from panics
func Recoverer(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error().
						Interface("panic", err).
						Str("path", r.URL.Path).
						Msg("panic recovered")

					Error(w, errors.Internal("an unexpected error occurred"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetSessionID retrieves the session ID from context
func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(SessionIDKey).(string); ok {
		return id
	}
	return ""
}

// SessionAuth loads the session referenced by the cookie and places the
// authenticated actor in the request context. Requests without a valid
// session are rejected with 401.
func SessionAuth(store *session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				Error(w, errors.Unauthorized("authentication required"))
				return
			}

			sess, err := store.Get(r.Context(), cookie.Value)
			if err != nil {
				Error(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), SessionIDKey, sess.ID)
			ctx = actor.WithActor(ctx, &actor.Actor{
				ID:       sess.UserID,
				Email:    sess.Email,
				Role:     sess.Role,
				TenantID: sess.TenantID,
			})

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CSRF rejects state-changing requests whose CSRF token is missing or does
// not match the current session. Safe methods pass through.
func CSRF(issuer *session.CSRFIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			token := r.Header.Get(CSRFHeaderName)
			if token == "" {
				Error(w, errors.Forbidden("missing CSRF token"))
				return
			}

			if err := issuer.Verify(token, GetSessionID(r.Context())); err != nil {
				Error(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// TenantResolver loads the active tenant for binding. Implemented by the
// tenants service.
type TenantResolver interface {
	ResolveActive(ctx context.Context, id string) (tenant.ActiveTenant, error)
}

// TenantBinding binds the actor's tenant into the request context. Tenant
// users are always bound to their own tenant; requests from users of a
// suspended tenant are rejected. Super admins pass through unbound and must
// name a tenant explicitly on the operations that require one.
func TenantBinding(resolver TenantResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			act := actor.FromContext(r.Context())
			if act == nil {
				Error(w, errors.Unauthorized("authentication required"))
				return
			}

			if act.IsSuperAdmin() {
				next.ServeHTTP(w, r)
				return
			}

			if act.TenantID == "" {
				Error(w, errors.Forbidden("user has no tenant"))
				return
			}

			active, err := resolver.ResolveActive(r.Context(), act.TenantID)
			if err != nil {
				Error(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(tenant.Bind(r.Context(), active)))
		})
	}
}

// RequireRoles rejects requests from actors outside the allowed roles.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			act := actor.FromContext(r.Context())
			if act == nil {
				Error(w, errors.Unauthorized("authentication required"))
				return
			}

			if _, ok := allowed[act.Role]; !ok {
				Error(w, errors.Forbidden("insufficient role"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
