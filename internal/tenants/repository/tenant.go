package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bimatrack/bimatrack-backend/internal/tenants/domain"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
)

// TenantRepository handles tenant persistence. The tenants table is the
// platform root, so queries here carry no tenant predicate.
type TenantRepository struct {
	db *database.DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *database.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

const tenantColumns = `id, name, slug, status, settings, created_at, updated_at, deleted_at`

// Create inserts a new tenant
func (r *TenantRepository) Create(ctx context.Context, t *domain.Tenant) error {
	query := `
		INSERT INTO tenants (name, slug, status, settings)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowx(ctx, query, t.Name, t.Slug, t.Status, t.Settings).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetByID returns a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	var t domain.Tenant
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1 AND deleted_at IS NULL`

	if err := r.db.Get(ctx, &t, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("tenant")
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &t, nil
}

// GetBySlug returns a tenant by slug
func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	var t domain.Tenant
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1 AND deleted_at IS NULL`

	if err := r.db.Get(ctx, &t, query, slug); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("tenant")
		}
		return nil, fmt.Errorf("failed to get tenant by slug: %w", err)
	}
	return &t, nil
}

// List returns all tenants, newest first
func (r *TenantRepository) List(ctx context.Context, limit, offset int) ([]domain.Tenant, int64, error) {
	var total int64
	if err := r.db.Get(ctx, &total, `SELECT COUNT(*) FROM tenants WHERE deleted_at IS NULL`); err != nil {
		return nil, 0, fmt.Errorf("failed to count tenants: %w", err)
	}

	tenants := []domain.Tenant{}
	query := `
		SELECT ` + tenantColumns + ` FROM tenants
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`
	if err := r.db.Select(ctx, &tenants, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list tenants: %w", err)
	}

	return tenants, total, nil
}

// SetStatus updates a tenant's status
func (r *TenantRepository) SetStatus(ctx context.Context, id, status string) error {
	query := `UPDATE tenants SET status = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	res, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to set tenant status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("tenant")
	}
	return nil
}

// UpdateSettings replaces a tenant's settings blob
func (r *TenantRepository) UpdateSettings(ctx context.Context, id string, settings domain.Settings) error {
	query := `UPDATE tenants SET settings = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	res, err := r.db.Exec(ctx, query, id, settings)
	if err != nil {
		return fmt.Errorf("failed to update tenant settings: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("tenant")
	}
	return nil
}
