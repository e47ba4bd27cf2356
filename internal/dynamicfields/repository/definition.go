package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bimatrack/bimatrack-backend/internal/dynamicfields/domain"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// DefinitionRepository handles dynamic field definition persistence
type DefinitionRepository struct {
	db *database.DB
}

// NewDefinitionRepository creates a new definition repository
func NewDefinitionRepository(db *database.DB) *DefinitionRepository {
	return &DefinitionRepository{db: db}
}

const definitionColumns = `id, tenant_id, entity_kind, name, key, data_type, choices,
	required, sort_order, is_active, created_at, updated_at, deleted_at`

// Create inserts a new field definition
func (r *DefinitionRepository) Create(ctx context.Context, d *domain.Definition) error {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return err
	}
	d.TenantID = tenantID

	query := `
		INSERT INTO dynamic_field_definitions (tenant_id, entity_kind, name, key, data_type, choices, required, sort_order, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRowx(ctx, query,
		d.TenantID, d.EntityKind, d.Name, d.Key, d.DataType, d.Choices, d.Required, d.SortOrder, d.IsActive,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to create field definition: %w", err)
	}
	return nil
}

// GetByID returns a definition in the bound tenant
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*domain.Definition, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var d domain.Definition
	query := `SELECT ` + definitionColumns + ` FROM dynamic_field_definitions
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`
	if err := r.db.Get(ctx, &d, query, id, tenantID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("field definition")
		}
		return nil, fmt.Errorf("failed to get field definition: %w", err)
	}
	return &d, nil
}

// ListByEntityKind returns the definitions for one entity kind in sort
// order. Pass activeOnly to hide retired fields.
func (r *DefinitionRepository) ListByEntityKind(ctx context.Context, entityKind string, activeOnly bool) ([]domain.Definition, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	defs := []domain.Definition{}
	query := `SELECT ` + definitionColumns + ` FROM dynamic_field_definitions
		WHERE tenant_id = $1 AND entity_kind = $2 AND deleted_at IS NULL`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY sort_order ASC, name ASC`
	if err := r.db.Select(ctx, &defs, query, tenantID, entityKind); err != nil {
		return nil, fmt.Errorf("failed to list field definitions: %w", err)
	}
	return defs, nil
}

// Update replaces the mutable attributes of a definition. Key, entity kind
// and data type are fixed at creation; changing them would orphan values.
func (r *DefinitionRepository) Update(ctx context.Context, d *domain.Definition) error {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE dynamic_field_definitions
		SET name = $3, choices = $4, required = $5, sort_order = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`

	res, err := r.db.Exec(ctx, query, d.ID, tenantID, d.Name, d.Choices, d.Required, d.SortOrder, d.IsActive)
	if err != nil {
		return fmt.Errorf("failed to update field definition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("field definition")
	}
	return nil
}

// SoftDelete retires a definition. Existing values stay readable through
// history but the field disappears from entry forms.
func (r *DefinitionRepository) SoftDelete(ctx context.Context, id string) error {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return err
	}

	res, err := r.db.Exec(ctx,
		`UPDATE dynamic_field_definitions SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete field definition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("field definition")
	}
	return nil
}
