package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bimatrack/bimatrack-backend/internal/fleet/domain"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// CustomerRepository handles customer persistence
type CustomerRepository struct {
	db *database.DB
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *database.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

const customerColumns = `id, tenant_id, kind, display_name, email, phone, created_at, updated_at, deleted_at`

// Create inserts a new customer
func (r *CustomerRepository) Create(ctx context.Context, c *domain.Customer) error {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return err
	}
	c.TenantID = tenantID

	query := `
		INSERT INTO customers (tenant_id, kind, display_name, email, phone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRowx(ctx, query, c.TenantID, c.Kind, c.DisplayName, c.Email, c.Phone).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetByID returns a customer in the bound tenant. A customer belonging to
// another tenant is indistinguishable from a missing one.
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var c domain.Customer
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`

	if err := r.db.Get(ctx, &c, query, id, tenantID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("customer")
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

// List returns the tenant's customers, newest first
func (r *CustomerRepository) List(ctx context.Context, limit, offset int) ([]domain.Customer, int64, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM customers WHERE tenant_id = $1 AND deleted_at IS NULL`
	if err := r.db.Get(ctx, &total, countQuery, tenantID); err != nil {
		return nil, 0, fmt.Errorf("failed to count customers: %w", err)
	}

	customers := []domain.Customer{}
	query := `
		SELECT ` + customerColumns + ` FROM customers
		WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	if err := r.db.Select(ctx, &customers, query, tenantID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list customers: %w", err)
	}

	return customers, total, nil
}

// Update modifies a customer's mutable fields
func (r *CustomerRepository) Update(ctx context.Context, c *domain.Customer) error {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE customers
		SET kind = $3, display_name = $4, email = $5, phone = $6, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`

	res, err := r.db.Exec(ctx, query, c.ID, tenantID, c.Kind, c.DisplayName, c.Email, c.Phone)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("customer")
	}
	return nil
}

// SoftDelete marks a customer deleted
func (r *CustomerRepository) SoftDelete(ctx context.Context, id string) error {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return err
	}

	query := `UPDATE customers SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`

	res, err := r.db.Exec(ctx, query, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("customer")
	}
	return nil
}
