package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bimatrack/bimatrack-backend/internal/coverage/domain"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// PermitRepository handles permit persistence
type PermitRepository struct {
	db *database.DB
}

// NewPermitRepository creates a new permit repository
func NewPermitRepository(db *database.DB) *PermitRepository {
	return &PermitRepository{db: db}
}

const permitColumns = `id, tenant_id, vehicle_id, permit_type, reference_number, issuing_authority,
	start_date, end_date, status, activated_at, cancelled_at, cancelled_by,
	cancellation_reason, cancellation_note, created_at, updated_at, deleted_at`

// Create inserts a new draft permit
func (r *PermitRepository) Create(ctx context.Context, p *domain.Permit) error {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return err
	}
	p.TenantID = tenantID

	query := `
		INSERT INTO permits (tenant_id, vehicle_id, permit_type, reference_number, issuing_authority,
			start_date, end_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRowx(ctx, query,
		p.TenantID, p.VehicleID, p.PermitType, p.ReferenceNumber, p.IssuingAuthority,
		p.StartDate, p.EndDate, p.Status,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to create permit: %w", err)
	}
	return nil
}

// GetByID returns a permit in the bound tenant
func (r *PermitRepository) GetByID(ctx context.Context, id string) (*domain.Permit, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var p domain.Permit
	query := `SELECT ` + permitColumns + ` FROM permits WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`

	if err := r.db.Get(ctx, &p, query, id, tenantID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("permit")
		}
		return nil, fmt.Errorf("failed to get permit: %w", err)
	}
	return &p, nil
}

// PermitListFilter narrows permit listings.
type PermitListFilter struct {
	VehicleID  string
	PermitType string
	Status     string
}

// List returns the tenant's permits, newest first
func (r *PermitRepository) List(ctx context.Context, f PermitListFilter, limit, offset int) ([]domain.Permit, int64, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	where := `tenant_id = $1 AND deleted_at IS NULL`
	args := []any{tenantID}
	if f.VehicleID != "" {
		args = append(args, f.VehicleID)
		where += fmt.Sprintf(` AND vehicle_id = $%d`, len(args))
	}
	if f.PermitType != "" {
		args = append(args, f.PermitType)
		where += fmt.Sprintf(` AND permit_type = $%d`, len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}

	var total int64
	if err := r.db.Get(ctx, &total, `SELECT COUNT(*) FROM permits WHERE `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count permits: %w", err)
	}

	permits := []domain.Permit{}
	query := fmt.Sprintf(`
		SELECT `+permitColumns+` FROM permits
		WHERE `+where+`
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	if err := r.db.Select(ctx, &permits, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list permits: %w", err)
	}

	return permits, total, nil
}

// UpdateDraft replaces the editable fields of a draft permit.
func (r *PermitRepository) UpdateDraft(ctx context.Context, p *domain.Permit) error {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE permits
		SET vehicle_id = $3, permit_type = $4, reference_number = $5, issuing_authority = $6,
		    start_date = $7, end_date = $8, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND status = $9 AND deleted_at IS NULL`

	res, err := r.db.Exec(ctx, query,
		p.ID, tenantID, p.VehicleID, p.PermitType, p.ReferenceNumber, p.IssuingAuthority,
		p.StartDate, p.EndDate, domain.StatusDraft,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to update permit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Immutable("permit can no longer be edited")
	}
	return nil
}

// SaveTransition moves a permit from expectedStatus to its new status.
func (r *PermitRepository) SaveTransition(ctx context.Context, p *domain.Permit, expectedStatus string) error {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE permits
		SET status = $3, activated_at = $4, cancelled_at = $5, cancelled_by = $6,
		    cancellation_reason = $7, cancellation_note = $8, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND status = $9 AND deleted_at IS NULL`

	res, err := r.db.Exec(ctx, query,
		p.ID, tenantID, p.Status, p.ActivatedAt, p.CancelledAt, p.CancelledBy,
		p.CancellationReason, p.CancellationNote, expectedStatus,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to transition permit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Conflict("permit was modified concurrently")
	}
	return nil
}

// HasActiveForVehicleType reports whether the vehicle already holds an
// active permit of the given type.
func (r *PermitRepository) HasActiveForVehicleType(ctx context.Context, vehicleID, permitType string) (bool, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return false, err
	}

	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM permits
			WHERE tenant_id = $1 AND vehicle_id = $2 AND permit_type = $3 AND status = $4 AND deleted_at IS NULL
		)`
	if err := r.db.Get(ctx, &exists, query, tenantID, vehicleID, permitType, domain.StatusActive); err != nil {
		return false, fmt.Errorf("failed to check active permit: %w", err)
	}
	return exists, nil
}

// ListDueForExpiry returns a tenant's active permits whose end date has
// passed.
func (r *PermitRepository) ListDueForExpiry(ctx context.Context, tenantID string, asOf time.Time) ([]domain.Permit, error) {
	permits := []domain.Permit{}
	query := `
		SELECT ` + permitColumns + ` FROM permits
		WHERE tenant_id = $1 AND status = $2 AND end_date < $3 AND deleted_at IS NULL
		ORDER BY end_date ASC`
	if err := r.db.Select(ctx, &permits, query, tenantID, domain.StatusActive, domain.DateOnly(asOf)); err != nil {
		return nil, fmt.Errorf("failed to list permits due for expiry: %w", err)
	}
	return permits, nil
}

// ListExpiringWithin returns a tenant's active permits ending inside the
// window [asOf, asOf+days].
func (r *PermitRepository) ListExpiringWithin(ctx context.Context, tenantID string, asOf time.Time, days int) ([]domain.Permit, error) {
	day := domain.DateOnly(asOf)
	permits := []domain.Permit{}
	query := `
		SELECT ` + permitColumns + ` FROM permits
		WHERE tenant_id = $1 AND status = $2
		  AND end_date >= $3 AND end_date <= $4 AND deleted_at IS NULL
		ORDER BY end_date ASC`
	if err := r.db.Select(ctx, &permits, query, tenantID, domain.StatusActive, day, day.AddDate(0, 0, days)); err != nil {
		return nil, fmt.Errorf("failed to list expiring permits: %w", err)
	}
	return permits, nil
}

// ListInForceForVehicle returns every permit of the vehicle that was ever
// activated, newest first, so compliance can answer past days from each
// record's in-force window.
func (r *PermitRepository) ListInForceForVehicle(ctx context.Context, vehicleID string) ([]domain.Permit, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	permits := []domain.Permit{}
	query := `
		SELECT ` + permitColumns + ` FROM permits
		WHERE tenant_id = $1 AND vehicle_id = $2 AND activated_at IS NOT NULL AND deleted_at IS NULL
		ORDER BY activated_at DESC`
	if err := r.db.Select(ctx, &permits, query, tenantID, vehicleID); err != nil {
		return nil, fmt.Errorf("failed to list activated permits: %w", err)
	}
	return permits, nil
}
