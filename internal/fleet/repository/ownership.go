package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bimatrack/bimatrack-backend/internal/fleet/domain"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// OwnershipRepository handles the ownership timeline
type OwnershipRepository struct {
	db *database.DB
}

// NewOwnershipRepository creates a new ownership repository
func NewOwnershipRepository(db *database.DB) *OwnershipRepository {
	return &OwnershipRepository{db: db}
}

const ownershipColumns = `id, tenant_id, vehicle_id, customer_id, from_ts, to_ts, created_at, updated_at, deleted_at`

// Open inserts a new open ownership segment. Fails with a conflict when the
// vehicle already has a current owner.
func (r *OwnershipRepository) Open(ctx context.Context, o *domain.Ownership) error {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return err
	}
	o.TenantID = tenantID

	query := `
		INSERT INTO ownerships (tenant_id, vehicle_id, customer_id, from_ts)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	from := o.From
	if from.IsZero() {
		from = time.Now().UTC()
		o.From = from
	}

	err = r.db.QueryRowx(ctx, query, o.TenantID, o.VehicleID, o.CustomerID, from).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to open ownership: %w", err)
	}
	return nil
}

// Current returns the open ownership segment for a vehicle, if any.
func (r *OwnershipRepository) Current(ctx context.Context, vehicleID string) (*domain.Ownership, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var o domain.Ownership
	query := `
		SELECT ` + ownershipColumns + ` FROM ownerships
		WHERE vehicle_id = $1 AND tenant_id = $2 AND to_ts IS NULL AND deleted_at IS NULL`

	if err := r.db.Get(ctx, &o, query, vehicleID, tenantID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("current ownership")
		}
		return nil, fmt.Errorf("failed to get current ownership: %w", err)
	}
	return &o, nil
}

// Close ends the open segment for a vehicle at the given time. Returns the
// closed segment, or NotFound when the vehicle has no current owner.
func (r *OwnershipRepository) Close(ctx context.Context, vehicleID string, at time.Time) (*domain.Ownership, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var o domain.Ownership
	query := `
		UPDATE ownerships
		SET to_ts = $3, updated_at = NOW()
		WHERE vehicle_id = $1 AND tenant_id = $2 AND to_ts IS NULL AND deleted_at IS NULL
		RETURNING ` + ownershipColumns

	if err := r.db.Get(ctx, &o, query, vehicleID, tenantID, at); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("current ownership")
		}
		return nil, fmt.Errorf("failed to close ownership: %w", err)
	}
	return &o, nil
}

// Timeline returns a vehicle's full ownership history, oldest first.
func (r *OwnershipRepository) Timeline(ctx context.Context, vehicleID string) ([]domain.Ownership, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	segments := []domain.Ownership{}
	query := `
		SELECT ` + ownershipColumns + ` FROM ownerships
		WHERE vehicle_id = $1 AND tenant_id = $2 AND deleted_at IS NULL
		ORDER BY from_ts ASC`
	if err := r.db.Select(ctx, &segments, query, vehicleID, tenantID); err != nil {
		return nil, fmt.Errorf("failed to list ownership timeline: %w", err)
	}
	return segments, nil
}
