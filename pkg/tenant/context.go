// Package tenant carries the active tenant identity through a request or
// background task. Every repository operation on tenant-scoped data resolves
// the ActiveTenant from context and fails fast when it is absent.
package tenant

import (
	"context"

	"github.com/bimatrack/bimatrack-backend/pkg/errors"
)

// Tenant status values
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Well-known settings keys
const (
	SettingExpiryReminderDays   = "expiry_reminder_days"
	SettingFleetPoliciesEnabled = "fleet_policies_enabled"
	SettingRequiredPermitTypes  = "required_permit_types"
	SettingRenewalBoundaryDays  = "renewal_boundary_days"
)

// DefaultRequiredPermitType is required for every tenant unless overridden.
const DefaultRequiredPermitType = "latra_license"

// Settings is the typed key->value configuration attached to a tenant.
type Settings map[string]any

// ActiveTenant is the immutable tenant identity bound to a request or task.
type ActiveTenant struct {
	ID       string
	Slug     string
	Status   string
	Settings Settings
}

// ExpiryReminderDays returns the tenant's risk window in days.
func (t ActiveTenant) ExpiryReminderDays(defaultDays int) int {
	if v, ok := t.Settings[SettingExpiryReminderDays]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return defaultDays
}

// FleetPoliciesEnabled reports whether fleet-level policies are enabled.
func (t ActiveTenant) FleetPoliciesEnabled() bool {
	if v, ok := t.Settings[SettingFleetPoliciesEnabled].(bool); ok {
		return v
	}
	return false
}

// RequiredPermitTypes returns the permit types a vehicle must hold to be
// compliant for this tenant.
func (t ActiveTenant) RequiredPermitTypes() []string {
	if raw, ok := t.Settings[SettingRequiredPermitTypes]; ok {
		switch vs := raw.(type) {
		case []string:
			if len(vs) > 0 {
				return vs
			}
		case []any:
			out := make([]string, 0, len(vs))
			for _, v := range vs {
				if s, ok := v.(string); ok {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return []string{DefaultRequiredPermitType}
}

// RenewalBoundaryDays returns the gap between a policy's end date and its
// renewal successor's start date. Defaults to 1 (successor starts the day
// after the predecessor ends).
func (t ActiveTenant) RenewalBoundaryDays() int {
	if v, ok := t.Settings[SettingRenewalBoundaryDays]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 1
}

// contextKey is a private type for context keys to prevent collisions
type contextKey struct{}

// Bind attaches the active tenant to the context.
func Bind(ctx context.Context, t ActiveTenant) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext extracts the active tenant. Returns ErrTenantUnbound when no
// tenant has been bound; repositories treat that as a fatal error.
func FromContext(ctx context.Context) (ActiveTenant, error) {
	t, ok := ctx.Value(contextKey{}).(ActiveTenant)
	if !ok || t.ID == "" {
		return ActiveTenant{}, errors.TenantUnbound()
	}
	return t, nil
}

// IDFromContext extracts just the tenant ID.
func IDFromContext(ctx context.Context) (string, error) {
	t, err := FromContext(ctx)
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

// MustFromContext extracts the active tenant and panics if not found.
// Use only where a missing tenant is a programming error.
func MustFromContext(ctx context.Context) ActiveTenant {
	t, err := FromContext(ctx)
	if err != nil {
		panic("active tenant not found in context")
	}
	return t
}
