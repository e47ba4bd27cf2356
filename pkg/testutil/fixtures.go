package testutil

import (
	"context"

	"github.com/google/uuid"

	"github.com/bimatrack/bimatrack-backend/pkg/actor"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// Fixed fixture identifiers so expectations can match on exact arguments.
var (
	TenantID  = "11111111-1111-1111-1111-111111111111"
	AdminID   = "22222222-2222-2222-2222-222222222222"
	ManagerID = "33333333-3333-3333-3333-333333333333"
	AgentID   = "44444444-4444-4444-4444-444444444444"
)

// TestTenant returns the fixture tenant with optional settings.
func TestTenant(settings tenant.Settings) tenant.ActiveTenant {
	if settings == nil {
		settings = tenant.Settings{}
	}
	return tenant.ActiveTenant{
		ID:       TenantID,
		Slug:     "acme-insurance",
		Status:   tenant.StatusActive,
		Settings: settings,
	}
}

// AdminActor returns a tenant admin fixture.
func AdminActor() *actor.Actor {
	return &actor.Actor{
		ID:       AdminID,
		Email:    "admin@acme.test",
		Role:     actor.RoleAdmin,
		TenantID: TenantID,
	}
}

// ManagerActor returns a tenant manager fixture.
func ManagerActor() *actor.Actor {
	return &actor.Actor{
		ID:       ManagerID,
		Email:    "manager@acme.test",
		Role:     actor.RoleManager,
		TenantID: TenantID,
	}
}

// AgentActor returns a tenant agent fixture.
func AgentActor() *actor.Actor {
	return &actor.Actor{
		ID:       AgentID,
		Email:    "agent@acme.test",
		Role:     actor.RoleAgent,
		TenantID: TenantID,
	}
}

// SuperAdminActor returns a platform operator fixture.
func SuperAdminActor() *actor.Actor {
	return &actor.Actor{
		ID:    uuid.NewString(),
		Email: "ops@bimatrack.test",
		Role:  actor.RoleSuperAdmin,
	}
}

// Context returns a context with the fixture tenant bound and the given
// actor attached.
func Context(act *actor.Actor, settings tenant.Settings) context.Context {
	ctx := tenant.Bind(context.Background(), TestTenant(settings))
	return actor.WithActor(ctx, act)
}

// SystemContext returns a context for background work in the fixture
// tenant.
func SystemContext() context.Context {
	return Context(actor.SystemActor(), nil)
}
