// Package service validates and stores tenant-configured dynamic fields.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	auditsvc "github.com/bimatrack/bimatrack-backend/internal/audit/service"
	"github.com/bimatrack/bimatrack-backend/internal/dynamicfields/domain"
	"github.com/bimatrack/bimatrack-backend/internal/dynamicfields/repository"
	identitysvc "github.com/bimatrack/bimatrack-backend/internal/identity/service"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
)

// EntityKindDefinition is the audit entity kind for field definitions.
const EntityKindDefinition = "dynamic_field_definition"

// DynamicFieldService owns field definitions and values.
type DynamicFieldService struct {
	definitions *repository.DefinitionRepository
	values      *repository.ValueRepository
	authority   *identitysvc.Authority
	db          *database.DB
	recorder    *auditsvc.Recorder
	logger      *logger.Logger
}

// NewDynamicFieldService creates a new dynamic field service
func NewDynamicFieldService(
	definitions *repository.DefinitionRepository,
	values *repository.ValueRepository,
	authority *identitysvc.Authority,
	db *database.DB,
	recorder *auditsvc.Recorder,
	log *logger.Logger,
) *DynamicFieldService {
	return &DynamicFieldService{
		definitions: definitions,
		values:      values,
		authority:   authority,
		db:          db,
		recorder:    recorder,
		logger:      log.WithComponent("dynamicfields"),
	}
}

// DefinitionInput declares or updates a field definition.
type DefinitionInput struct {
	EntityKind string   `json:"entity_kind" validate:"required,oneof=customer vehicle policy"`
	Name       string   `json:"name" validate:"required,max=128"`
	Key        string   `json:"key" validate:"required,max=64"`
	DataType   string   `json:"data_type" validate:"required,oneof=text number date boolean choice"`
	Choices    []string `json:"choices,omitempty"`
	Required   bool     `json:"required"`
	SortOrder  int      `json:"sort_order"`
}

// CreateDefinition declares a new dynamic field.
func (s *DynamicFieldService) CreateDefinition(ctx context.Context, in DefinitionInput) (*domain.Definition, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpDynamicFieldsManage, EntityKindDefinition, ""); err != nil {
		return nil, err
	}

	if in.DataType == domain.TypeChoice && len(in.Choices) == 0 {
		return nil, errors.Validation(map[string]string{"choices": "choice fields need at least one choice"})
	}
	if in.DataType != domain.TypeChoice && len(in.Choices) > 0 {
		return nil, errors.Validation(map[string]string{"choices": "only choice fields carry choices"})
	}

	d := &domain.Definition{
		EntityKind: in.EntityKind,
		Name:       in.Name,
		Key:        in.Key,
		DataType:   in.DataType,
		Choices:    domain.Choices(in.Choices),
		Required:   in.Required,
		SortOrder:  in.SortOrder,
		IsActive:   true,
	}

	err := s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.definitions.Create(ctx, d); err != nil {
			return err
		}
		return s.recorder.Record(ctx, EntityKindDefinition, d.ID, "create", nil, d)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("definition_id", d.ID).Str("key", d.Key).Msg("field definition created")
	return d, nil
}

// UpdateDefinition changes a definition's mutable attributes. The key,
// entity kind and data type are fixed; removing a choice that values
// already use is allowed and leaves those values as historical readings.
func (s *DynamicFieldService) UpdateDefinition(ctx context.Context, id string, in DefinitionInput) (*domain.Definition, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpDynamicFieldsManage, EntityKindDefinition, id); err != nil {
		return nil, err
	}

	before, err := s.definitions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.EntityKind != before.EntityKind || in.Key != before.Key || in.DataType != before.DataType {
		return nil, errors.Validation(map[string]string{
			"key": "entity kind, key and data type cannot change after creation",
		})
	}
	if before.DataType == domain.TypeChoice && len(in.Choices) == 0 {
		return nil, errors.Validation(map[string]string{"choices": "choice fields need at least one choice"})
	}

	after := *before
	after.Name = in.Name
	after.Choices = domain.Choices(in.Choices)
	after.Required = in.Required
	after.SortOrder = in.SortOrder

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.definitions.Update(ctx, &after); err != nil {
			return err
		}
		return s.recorder.Record(ctx, EntityKindDefinition, id, "update", before, &after)
	})
	if err != nil {
		return nil, err
	}

	return &after, nil
}

// SetDefinitionActive toggles whether a field appears on entry forms.
func (s *DynamicFieldService) SetDefinitionActive(ctx context.Context, id string, active bool) (*domain.Definition, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpDynamicFieldsManage, EntityKindDefinition, id); err != nil {
		return nil, err
	}

	before, err := s.definitions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if before.IsActive == active {
		return before, nil
	}

	after := *before
	after.IsActive = active

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.definitions.Update(ctx, &after); err != nil {
			return err
		}
		return s.recorder.Record(ctx, EntityKindDefinition, id, "update", before, &after)
	})
	if err != nil {
		return nil, err
	}
	return &after, nil
}

// DeleteDefinition retires a field definition.
func (s *DynamicFieldService) DeleteDefinition(ctx context.Context, id string) error {
	if err := s.authority.Authorize(ctx, identitysvc.OpDynamicFieldsManage, EntityKindDefinition, id); err != nil {
		return err
	}

	before, err := s.definitions.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.definitions.SoftDelete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, EntityKindDefinition, id, "soft_delete", before, nil)
	})
}

// ListDefinitions returns the definitions for one entity kind.
func (s *DynamicFieldService) ListDefinitions(ctx context.Context, entityKind string, activeOnly bool) ([]domain.Definition, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpBusinessRead, EntityKindDefinition, ""); err != nil {
		return nil, err
	}
	if !domain.ValidEntityKind(entityKind) {
		return nil, errors.Validation(map[string]string{"entity_kind": "unknown entity kind"})
	}
	return s.definitions.ListByEntityKind(ctx, entityKind, activeOnly)
}

// SetValueInput carries one raw field value to validate and store.
type SetValueInput struct {
	DefinitionID string          `json:"definition_id" validate:"required,uuid"`
	Value        json.RawMessage `json:"value" validate:"required"`
}

// SetValue validates a raw value against its definition and stores it.
// Writing a value requires the same permission as writing the entity.
func (s *DynamicFieldService) SetValue(ctx context.Context, entityKind, entityID string, in SetValueInput) (*domain.Value, error) {
	if !domain.ValidEntityKind(entityKind) {
		return nil, errors.Validation(map[string]string{"entity_kind": "unknown entity kind"})
	}
	if err := s.authority.Authorize(ctx, valueWriteOp(entityKind), entityKind, entityID); err != nil {
		return nil, err
	}

	def, err := s.definitions.GetByID(ctx, in.DefinitionID)
	if err != nil {
		return nil, err
	}
	if def.EntityKind != entityKind {
		return nil, errors.Validation(map[string]string{
			"definition_id": "definition belongs to entity kind " + def.EntityKind,
		})
	}
	if !def.IsActive {
		return nil, errors.Validation(map[string]string{"definition_id": "field is no longer active"})
	}

	v := &domain.Value{
		DefinitionID: def.ID,
		EntityKind:   entityKind,
		EntityID:     entityID,
	}
	if err := coerceValue(def, in.Value, v); err != nil {
		return nil, err
	}

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.values.Upsert(ctx, v); err != nil {
			return err
		}
		return s.recorder.Record(ctx, entityKind, entityID, "update",
			map[string]string{"field": def.Key}, v)
	})
	if err != nil {
		return nil, err
	}

	return v, nil
}

// ClearValue removes a field value from an entity.
func (s *DynamicFieldService) ClearValue(ctx context.Context, entityKind, entityID, definitionID string) error {
	if !domain.ValidEntityKind(entityKind) {
		return errors.Validation(map[string]string{"entity_kind": "unknown entity kind"})
	}
	if err := s.authority.Authorize(ctx, valueWriteOp(entityKind), entityKind, entityID); err != nil {
		return err
	}

	def, err := s.definitions.GetByID(ctx, definitionID)
	if err != nil {
		return err
	}
	if def.Required {
		return errors.Validation(map[string]string{"definition_id": "required fields cannot be cleared"})
	}

	return s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.values.Delete(ctx, definitionID, entityID); err != nil {
			return err
		}
		return s.recorder.Record(ctx, entityKind, entityID, "update",
			map[string]string{"field": def.Key}, nil)
	})
}

// ListValues returns an entity's field values.
func (s *DynamicFieldService) ListValues(ctx context.Context, entityKind, entityID string) ([]domain.Value, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpBusinessRead, entityKind, entityID); err != nil {
		return nil, err
	}
	if !domain.ValidEntityKind(entityKind) {
		return nil, errors.Validation(map[string]string{"entity_kind": "unknown entity kind"})
	}
	return s.values.ListByEntity(ctx, entityKind, entityID)
}

// valueWriteOp maps an entity kind to the permission that guards writing
// the entity itself.
func valueWriteOp(entityKind string) string {
	switch entityKind {
	case domain.EntityKindCustomer:
		return identitysvc.OpCustomerWrite
	case domain.EntityKindVehicle:
		return identitysvc.OpVehicleWrite
	default:
		return identitysvc.OpRecordDraft
	}
}

// coerceValue parses the raw JSON value into the typed column matching the
// definition's data type.
func coerceValue(def *domain.Definition, raw json.RawMessage, v *domain.Value) error {
	switch def.DataType {
	case domain.TypeText:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return errors.Validation(map[string]string{def.Key: "must be a string"})
		}
		if len(s) > domain.MaxTextLength {
			return errors.Validation(map[string]string{def.Key: "text exceeds maximum length"})
		}
		v.ValueText = &s

	case domain.TypeNumber:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return errors.Validation(map[string]string{def.Key: "must be a number"})
		}
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return errors.Validation(map[string]string{def.Key: "must be a number"})
		}
		v.ValueNumber = decimal.NewNullDecimal(d)

	case domain.TypeDate:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return errors.Validation(map[string]string{def.Key: "must be a date string"})
		}
		t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
		if err != nil {
			return errors.Validation(map[string]string{def.Key: "must be a date in YYYY-MM-DD form"})
		}
		v.ValueDate = &t

	case domain.TypeBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return errors.Validation(map[string]string{def.Key: "must be a boolean"})
		}
		v.ValueBool = &b

	case domain.TypeChoice:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return errors.Validation(map[string]string{def.Key: "must be a string"})
		}
		if !def.Choices.Contains(s) {
			return errors.Validation(map[string]string{def.Key: "not an allowed choice"})
		}
		v.ValueChoice = &s

	default:
		return errors.Internal("unknown field data type " + def.DataType)
	}
	return nil
}
