package tenant_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

func TestBindAndFromContext(t *testing.T) {
	active := tenant.ActiveTenant{ID: "t1", Slug: "acme", Status: tenant.StatusActive}

	ctx := tenant.Bind(context.Background(), active)
	got, err := tenant.FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, "acme", got.Slug)

	id, err := tenant.IDFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t1", id)
}

func TestFromContextUnbound(t *testing.T) {
	_, err := tenant.FromContext(context.Background())
	assert.True(t, errors.Is(err, errors.ErrTenantUnbound))

	_, err = tenant.IDFromContext(context.Background())
	assert.True(t, errors.Is(err, errors.ErrTenantUnbound))

	// An empty tenant ID counts as unbound too.
	ctx := tenant.Bind(context.Background(), tenant.ActiveTenant{})
	_, err = tenant.FromContext(ctx)
	assert.True(t, errors.Is(err, errors.ErrTenantUnbound))
}

func TestExpiryReminderDays(t *testing.T) {
	t.Run("default applies without a setting", func(t *testing.T) {
		active := tenant.ActiveTenant{ID: "t1"}
		assert.Equal(t, 30, active.ExpiryReminderDays(30))
	})

	t.Run("reads int and float forms", func(t *testing.T) {
		// Settings loaded from JSONB arrive as float64.
		active := tenant.ActiveTenant{ID: "t1", Settings: tenant.Settings{
			tenant.SettingExpiryReminderDays: float64(14),
		}}
		assert.Equal(t, 14, active.ExpiryReminderDays(30))

		active.Settings[tenant.SettingExpiryReminderDays] = 7
		assert.Equal(t, 7, active.ExpiryReminderDays(30))
	})
}

func TestRequiredPermitTypes(t *testing.T) {
	t.Run("defaults to the LATRA license", func(t *testing.T) {
		active := tenant.ActiveTenant{ID: "t1"}
		assert.Equal(t, []string{tenant.DefaultRequiredPermitType}, active.RequiredPermitTypes())
	})

	t.Run("reads a JSON-decoded list", func(t *testing.T) {
		active := tenant.ActiveTenant{ID: "t1", Settings: tenant.Settings{
			tenant.SettingRequiredPermitTypes: []any{"latra_license", "roadworthiness"},
		}}
		assert.Equal(t, []string{"latra_license", "roadworthiness"}, active.RequiredPermitTypes())
	})

	t.Run("empty override falls back to the default", func(t *testing.T) {
		active := tenant.ActiveTenant{ID: "t1", Settings: tenant.Settings{
			tenant.SettingRequiredPermitTypes: []any{},
		}}
		assert.Equal(t, []string{tenant.DefaultRequiredPermitType}, active.RequiredPermitTypes())
	})
}

func TestRenewalBoundaryDays(t *testing.T) {
	active := tenant.ActiveTenant{ID: "t1"}
	assert.Equal(t, 1, active.RenewalBoundaryDays())

	active.Settings = tenant.Settings{tenant.SettingRenewalBoundaryDays: float64(7)}
	assert.Equal(t, 7, active.RenewalBoundaryDays())
}

func TestFleetPoliciesEnabled(t *testing.T) {
	active := tenant.ActiveTenant{ID: "t1"}
	assert.False(t, active.FleetPoliciesEnabled())

	active.Settings = tenant.Settings{tenant.SettingFleetPoliciesEnabled: true}
	assert.True(t, active.FleetPoliciesEnabled())
}
