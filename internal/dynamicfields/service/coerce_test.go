package service

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimatrack/bimatrack-backend/internal/dynamicfields/domain"
	identitysvc "github.com/bimatrack/bimatrack-backend/internal/identity/service"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
)

func textDef() *domain.Definition {
	return &domain.Definition{Key: "fleet_code", DataType: domain.TypeText}
}

func TestCoerceValueText(t *testing.T) {
	t.Run("accepts a string", func(t *testing.T) {
		var v domain.Value
		err := coerceValue(textDef(), json.RawMessage(`"DSM-01"`), &v)
		require.NoError(t, err)
		require.NotNil(t, v.ValueText)
		assert.Equal(t, "DSM-01", *v.ValueText)
	})

	t.Run("rejects non-strings", func(t *testing.T) {
		var v domain.Value
		err := coerceValue(textDef(), json.RawMessage(`42`), &v)
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})

	t.Run("rejects oversized text", func(t *testing.T) {
		var v domain.Value
		long := `"` + strings.Repeat("x", domain.MaxTextLength+1) + `"`
		err := coerceValue(textDef(), json.RawMessage(long), &v)
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})
}

func TestCoerceValueNumber(t *testing.T) {
	def := &domain.Definition{Key: "axle_load", DataType: domain.TypeNumber}

	t.Run("accepts integers and decimals", func(t *testing.T) {
		var v domain.Value
		require.NoError(t, coerceValue(def, json.RawMessage(`12`), &v))
		require.True(t, v.ValueNumber.Valid)
		assert.Equal(t, "12", v.ValueNumber.Decimal.String())

		var w domain.Value
		require.NoError(t, coerceValue(def, json.RawMessage(`12.5`), &w))
		assert.Equal(t, "12.5", w.ValueNumber.Decimal.String())
	})

	t.Run("rejects strings", func(t *testing.T) {
		var v domain.Value
		err := coerceValue(def, json.RawMessage(`"12"`), &v)
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})
}

func TestCoerceValueDate(t *testing.T) {
	def := &domain.Definition{Key: "inspection_date", DataType: domain.TypeDate}

	t.Run("accepts YYYY-MM-DD", func(t *testing.T) {
		var v domain.Value
		require.NoError(t, coerceValue(def, json.RawMessage(`"2026-08-24"`), &v))
		require.NotNil(t, v.ValueDate)
		assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), *v.ValueDate)
	})

	t.Run("rejects other formats", func(t *testing.T) {
		var v domain.Value
		err := coerceValue(def, json.RawMessage(`"24/08/2026"`), &v)
		assert.True(t, errors.Is(err, errors.ErrValidation))

		err = coerceValue(def, json.RawMessage(`"2026-08-24T10:00:00Z"`), &v)
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})
}

func TestCoerceValueBoolean(t *testing.T) {
	def := &domain.Definition{Key: "insured_abroad", DataType: domain.TypeBoolean}

	var v domain.Value
	require.NoError(t, coerceValue(def, json.RawMessage(`true`), &v))
	require.NotNil(t, v.ValueBool)
	assert.True(t, *v.ValueBool)

	err := coerceValue(def, json.RawMessage(`"yes"`), &v)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestCoerceValueChoice(t *testing.T) {
	def := &domain.Definition{
		Key:      "route_class",
		DataType: domain.TypeChoice,
		Choices:  domain.Choices{"urban", "intercity", "cross_border"},
	}

	t.Run("accepts an allowed choice", func(t *testing.T) {
		var v domain.Value
		require.NoError(t, coerceValue(def, json.RawMessage(`"intercity"`), &v))
		require.NotNil(t, v.ValueChoice)
		assert.Equal(t, "intercity", *v.ValueChoice)
	})

	t.Run("rejects an unknown choice", func(t *testing.T) {
		var v domain.Value
		err := coerceValue(def, json.RawMessage(`"maritime"`), &v)
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})
}

func TestCoerceValueUnknownType(t *testing.T) {
	def := &domain.Definition{Key: "broken", DataType: "geometry"}

	var v domain.Value
	err := coerceValue(def, json.RawMessage(`"x"`), &v)
	assert.True(t, errors.Is(err, errors.ErrInternal))
}

func TestValueWriteOp(t *testing.T) {
	assert.Equal(t, identitysvc.OpCustomerWrite, valueWriteOp(domain.EntityKindCustomer))
	assert.Equal(t, identitysvc.OpVehicleWrite, valueWriteOp(domain.EntityKindVehicle))
	assert.Equal(t, identitysvc.OpRecordDraft, valueWriteOp(domain.EntityKindPolicy))
}
