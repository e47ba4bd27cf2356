package database_test

import (
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
)

func TestMapPQError(t *testing.T) {
	t.Run("single active policy index maps to overlap", func(t *testing.T) {
		err := &pq.Error{Code: "23505", Constraint: database.ConstraintOneActivePolicy}
		appErr := database.MapPQError(err)
		require.NotNil(t, appErr)
		assert.True(t, errors.Is(appErr, errors.ErrOverlap))
	})

	t.Run("single active permit index maps to overlap", func(t *testing.T) {
		err := &pq.Error{Code: "23505", Constraint: database.ConstraintOneActivePermitPerType}
		appErr := database.MapPQError(err)
		require.NotNil(t, appErr)
		assert.True(t, errors.Is(appErr, errors.ErrOverlap))
	})

	t.Run("named unique constraints map to conflicts", func(t *testing.T) {
		tests := []struct {
			constraint string
		}{
			{"uq_vehicles_registration_plate"},
			{"uq_policies_policy_number"},
			{"uq_ownership_open"},
			{"users_email_key"},
			{"tenants_slug_key"},
			{"uq_notifications_dedupe"},
			{"some_other_unique_key"},
		}
		for _, tt := range tests {
			appErr := database.MapPQError(&pq.Error{Code: "23505", Constraint: tt.constraint})
			require.NotNil(t, appErr, tt.constraint)
			assert.True(t, errors.Is(appErr, errors.ErrConflict), tt.constraint)
		}
	})

	t.Run("check constraints map to validation errors", func(t *testing.T) {
		appErr := database.MapPQError(&pq.Error{Code: "23514", Constraint: "chk_policies_end_after_start"})
		require.NotNil(t, appErr)
		assert.True(t, errors.Is(appErr, errors.ErrValidation))
		assert.Equal(t, "must be after start date", appErr.Details["end_date"])

		appErr = database.MapPQError(&pq.Error{Code: "23514", Constraint: "chk_policies_premium_positive"})
		require.NotNil(t, appErr)
		assert.Equal(t, "must be positive", appErr.Details["premium_amount"])
	})

	t.Run("foreign key violations map to bad requests", func(t *testing.T) {
		appErr := database.MapPQError(&pq.Error{Code: "23503"})
		require.NotNil(t, appErr)
		assert.True(t, errors.Is(appErr, errors.ErrValidation))
	})

	t.Run("not null violations name the column", func(t *testing.T) {
		appErr := database.MapPQError(&pq.Error{Code: "23502", Column: "policy_number"})
		require.NotNil(t, appErr)
		assert.Equal(t, "must not be empty", appErr.Details["policy_number"])
	})

	t.Run("non-postgres errors pass through", func(t *testing.T) {
		assert.Nil(t, database.MapPQError(fmt.Errorf("plain error")))
		assert.Nil(t, database.MapPQError(nil))
	})

	t.Run("unhandled codes pass through", func(t *testing.T) {
		assert.Nil(t, database.MapPQError(&pq.Error{Code: "42P01"}))
	})
}
