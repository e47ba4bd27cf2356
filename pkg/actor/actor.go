// Package actor identifies the user or system process performing an action.
// It feeds audit attribution and the role checks in the authority layer.
package actor

import (
	"context"
	"fmt"
)

// Roles recognized by the platform. Super admins are platform operators and
// carry no tenant; the other three are tenant roles.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleAgent      = "agent"
	RoleSystem     = "system"
)

// systemActorID is the fixed identity for background jobs.
const systemActorID = "00000000-0000-0000-0000-000000000000"

// Actor represents the entity performing an action.
type Actor struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
}

// String returns a representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "system"
	}
	return fmt.Sprintf("%s (%s)", a.Email, a.Role)
}

// IsSuperAdmin reports whether the actor is a platform operator.
func (a *Actor) IsSuperAdmin() bool {
	return a != nil && a.Role == RoleSuperAdmin
}

// IsSystem reports whether the actor is the background system identity.
func (a *Actor) IsSystem() bool {
	if a == nil {
		return true
	}
	return a.ID == systemActorID
}

// SystemActor returns the Actor for background jobs and scheduled tasks.
func SystemActor() *Actor {
	return &Actor{
		ID:    systemActorID,
		Email: "system@bimatrack.local",
		Role:  RoleSystem,
	}
}

// contextKey is the type for context keys to avoid collisions
type contextKey struct{}

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present.
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(contextKey{}).(*Actor)
	if !ok {
		return nil
	}
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, a)
}

// MustFromContext retrieves the Actor and panics if absent. Use only where
// the middleware chain guarantees an authenticated actor.
func MustFromContext(ctx context.Context) *Actor {
	a := FromContext(ctx)
	if a == nil {
		panic("actor not found in context")
	}
	return a
}
