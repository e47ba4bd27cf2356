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

// VehicleRepository handles vehicle persistence
type VehicleRepository struct {
	db *database.DB
}

// NewVehicleRepository creates a new vehicle repository
func NewVehicleRepository(db *database.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

const vehicleColumns = `id, tenant_id, registration_plate, chassis_number, engine_number,
	vehicle_type, usage_category, status, created_at, updated_at, deleted_at`

// Create inserts a new vehicle
func (r *VehicleRepository) Create(ctx context.Context, v *domain.Vehicle) error {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return err
	}
	v.TenantID = tenantID

	query := `
		INSERT INTO vehicles (tenant_id, registration_plate, chassis_number, engine_number, vehicle_type, usage_category, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRowx(ctx, query,
		v.TenantID, v.RegistrationPlate, v.ChassisNumber, v.EngineNumber,
		v.VehicleType, v.UsageCategory, v.Status,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to create vehicle: %w", err)
	}
	return nil
}

// GetByID returns a vehicle in the bound tenant
func (r *VehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var v domain.Vehicle
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`

	if err := r.db.Get(ctx, &v, query, id, tenantID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("vehicle")
		}
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return &v, nil
}

// GetByPlate returns a vehicle by registration plate
func (r *VehicleRepository) GetByPlate(ctx context.Context, plate string) (*domain.Vehicle, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var v domain.Vehicle
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE registration_plate = $1 AND tenant_id = $2 AND deleted_at IS NULL`

	if err := r.db.Get(ctx, &v, query, plate, tenantID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("vehicle")
		}
		return nil, fmt.Errorf("failed to get vehicle by plate: %w", err)
	}
	return &v, nil
}

// List returns the tenant's vehicles, newest first. An optional status
// filters the result.
func (r *VehicleRepository) List(ctx context.Context, status string, limit, offset int) ([]domain.Vehicle, int64, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	where := `tenant_id = $1 AND deleted_at IS NULL`
	args := []any{tenantID}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}

	var total int64
	if err := r.db.Get(ctx, &total, `SELECT COUNT(*) FROM vehicles WHERE `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count vehicles: %w", err)
	}

	vehicles := []domain.Vehicle{}
	query := fmt.Sprintf(`
		SELECT `+vehicleColumns+` FROM vehicles
		WHERE `+where+`
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	if err := r.db.Select(ctx, &vehicles, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list vehicles: %w", err)
	}

	return vehicles, total, nil
}

// Update modifies a vehicle's mutable fields
func (r *VehicleRepository) Update(ctx context.Context, v *domain.Vehicle) error {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE vehicles
		SET registration_plate = $3, chassis_number = $4, engine_number = $5,
		    vehicle_type = $6, usage_category = $7, status = $8, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`

	res, err := r.db.Exec(ctx, query,
		v.ID, tenantID, v.RegistrationPlate, v.ChassisNumber, v.EngineNumber,
		v.VehicleType, v.UsageCategory, v.Status,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to update vehicle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("vehicle")
	}
	return nil
}

// SoftDelete marks a vehicle deleted
func (r *VehicleRepository) SoftDelete(ctx context.Context, id string) error {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return err
	}

	query := `UPDATE vehicles SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`

	res, err := r.db.Exec(ctx, query, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete vehicle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("vehicle")
	}
	return nil
}
