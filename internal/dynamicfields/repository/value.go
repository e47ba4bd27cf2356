package repository

import (
	"context"
	"fmt"

	"github.com/bimatrack/bimatrack-backend/internal/dynamicfields/domain"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// ValueRepository handles dynamic field value persistence
type ValueRepository struct {
	db *database.DB
}

// NewValueRepository creates a new value repository
func NewValueRepository(db *database.DB) *ValueRepository {
	return &ValueRepository{db: db}
}

const valueColumns = `id, tenant_id, definition_id, entity_kind, entity_id,
	value_text, value_number, value_date, value_bool, value_choice,
	created_at, updated_at, deleted_at`

// Upsert writes the value for one (definition, entity) pair, replacing any
// previous value.
func (r *ValueRepository) Upsert(ctx context.Context, v *domain.Value) error {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return err
	}
	v.TenantID = tenantID

	query := `
		INSERT INTO dynamic_field_values (tenant_id, definition_id, entity_kind, entity_id,
			value_text, value_number, value_date, value_bool, value_choice)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, definition_id, entity_id) WHERE deleted_at IS NULL
		DO UPDATE SET value_text = EXCLUDED.value_text,
			value_number = EXCLUDED.value_number,
			value_date = EXCLUDED.value_date,
			value_bool = EXCLUDED.value_bool,
			value_choice = EXCLUDED.value_choice,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRowx(ctx, query,
		v.TenantID, v.DefinitionID, v.EntityKind, v.EntityID,
		v.ValueText, v.ValueNumber, v.ValueDate, v.ValueBool, v.ValueChoice,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to upsert field value: %w", err)
	}
	return nil
}

// ListByEntity returns an entity's field values
func (r *ValueRepository) ListByEntity(ctx context.Context, entityKind, entityID string) ([]domain.Value, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	values := []domain.Value{}
	query := `SELECT ` + valueColumns + ` FROM dynamic_field_values
		WHERE tenant_id = $1 AND entity_kind = $2 AND entity_id = $3 AND deleted_at IS NULL`
	if err := r.db.Select(ctx, &values, query, tenantID, entityKind, entityID); err != nil {
		return nil, fmt.Errorf("failed to list field values: %w", err)
	}
	return values, nil
}

// Delete removes the value for one (definition, entity) pair
func (r *ValueRepository) Delete(ctx context.Context, definitionID, entityID string) error {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return err
	}

	res, err := r.db.Exec(ctx,
		`UPDATE dynamic_field_values SET deleted_at = NOW(), updated_at = NOW()
		 WHERE tenant_id = $1 AND definition_id = $2 AND entity_id = $3 AND deleted_at IS NULL`,
		tenantID, definitionID, entityID)
	if err != nil {
		return fmt.Errorf("failed to delete field value: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("field value")
	}
	return nil
}
