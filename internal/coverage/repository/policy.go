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

// PolicyRepository handles policy persistence
type PolicyRepository struct {
	db *database.DB
}

// NewPolicyRepository creates a new policy repository
func NewPolicyRepository(db *database.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

const policyColumns = `id, tenant_id, vehicle_id, policy_number, start_date, end_date,
	premium_amount, coverage_amount, policy_type, notes, status,
	activated_at, cancelled_at, cancelled_by, cancellation_reason, cancellation_note,
	renewed_from, created_at, updated_at, deleted_at`

// Create inserts a new draft policy
func (r *PolicyRepository) Create(ctx context.Context, p *domain.Policy) error {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return err
	}
	p.TenantID = tenantID

	query := `
		INSERT INTO policies (tenant_id, vehicle_id, policy_number, start_date, end_date,
			premium_amount, coverage_amount, policy_type, notes, status, renewed_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRowx(ctx, query,
		p.TenantID, p.VehicleID, p.PolicyNumber, p.StartDate, p.EndDate,
		p.PremiumAmount, p.CoverageAmount, p.PolicyType, p.Notes, p.Status, p.RenewedFrom,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to create policy: %w", err)
	}
	return nil
}

// GetByID returns a policy in the bound tenant
func (r *PolicyRepository) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var p domain.Policy
	query := `SELECT ` + policyColumns + ` FROM policies WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`

	if err := r.db.Get(ctx, &p, query, id, tenantID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("policy")
		}
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return &p, nil
}

// ListFilter narrows policy listings.
type ListFilter struct {
	VehicleID string
	Status    string
}

// List returns the tenant's policies, newest first
func (r *PolicyRepository) List(ctx context.Context, f ListFilter, limit, offset int) ([]domain.Policy, int64, error) {
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
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}

	var total int64
	if err := r.db.Get(ctx, &total, `SELECT COUNT(*) FROM policies WHERE `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count policies: %w", err)
	}

	policies := []domain.Policy{}
	query := fmt.Sprintf(`
		SELECT `+policyColumns+` FROM policies
		WHERE `+where+`
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	if err := r.db.Select(ctx, &policies, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list policies: %w", err)
	}

	return policies, total, nil
}

// UpdateDraft replaces the editable fields of a draft or pending-payment
// policy. The status predicate makes the immutability rule hold even if a
// concurrent transition won the race.
func (r *PolicyRepository) UpdateDraft(ctx context.Context, p *domain.Policy) error {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE policies
		SET vehicle_id = $3, start_date = $4, end_date = $5, premium_amount = $6,
		    coverage_amount = $7, policy_type = $8, notes = $9, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND status IN ($10, $11) AND deleted_at IS NULL`

	res, err := r.db.Exec(ctx, query,
		p.ID, tenantID, p.VehicleID, p.StartDate, p.EndDate, p.PremiumAmount,
		p.CoverageAmount, p.PolicyType, p.Notes,
		domain.StatusDraft, domain.StatusPendingPayment,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to update policy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Immutable("policy can no longer be edited")
	}
	return nil
}

// SaveTransition moves a policy from expectedStatus to its new status and
// writes the transition metadata. Zero rows means another transition got
// there first.
func (r *PolicyRepository) SaveTransition(ctx context.Context, p *domain.Policy, expectedStatus string) error {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE policies
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
		return fmt.Errorf("failed to transition policy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Conflict("policy was modified concurrently")
	}
	return nil
}

// HasActiveForVehicle reports whether the vehicle already holds an active
// policy. The partial unique index is the authority; this pre-check exists
// to reject early with a clean error.
func (r *PolicyRepository) HasActiveForVehicle(ctx context.Context, vehicleID string) (bool, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return false, err
	}

	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM policies
			WHERE tenant_id = $1 AND vehicle_id = $2 AND status = $3 AND deleted_at IS NULL
		)`
	if err := r.db.Get(ctx, &exists, query, tenantID, vehicleID, domain.StatusActive); err != nil {
		return false, fmt.Errorf("failed to check active policy: %w", err)
	}
	return exists, nil
}

// NextSequence returns the next policy number sequence for the tenant and
// start-date year, the same year the number is formatted with. The unique
// index on policy_number backstops concurrent callers.
func (r *PolicyRepository) NextSequence(ctx context.Context, year int) (int, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	query := `
		SELECT COUNT(*) FROM policies
		WHERE tenant_id = $1 AND EXTRACT(YEAR FROM start_date) = $2`
	if err := r.db.Get(ctx, &count, query, tenantID, year); err != nil {
		return 0, fmt.Errorf("failed to count policies for year: %w", err)
	}
	return count + 1, nil
}

// ListDueForExpiry returns a tenant's active policies whose end date has
// passed. Takes an explicit tenant ID for the reconciler sweep.
func (r *PolicyRepository) ListDueForExpiry(ctx context.Context, tenantID string, asOf time.Time) ([]domain.Policy, error) {
	policies := []domain.Policy{}
	query := `
		SELECT ` + policyColumns + ` FROM policies
		WHERE tenant_id = $1 AND status = $2 AND end_date < $3 AND deleted_at IS NULL
		ORDER BY end_date ASC`
	if err := r.db.Select(ctx, &policies, query, tenantID, domain.StatusActive, domain.DateOnly(asOf)); err != nil {
		return nil, fmt.Errorf("failed to list policies due for expiry: %w", err)
	}
	return policies, nil
}

// ListExpiringWithin returns a tenant's active policies ending inside the
// window [asOf, asOf+days].
func (r *PolicyRepository) ListExpiringWithin(ctx context.Context, tenantID string, asOf time.Time, days int) ([]domain.Policy, error) {
	day := domain.DateOnly(asOf)
	policies := []domain.Policy{}
	query := `
		SELECT ` + policyColumns + ` FROM policies
		WHERE tenant_id = $1 AND status = $2
		  AND end_date >= $3 AND end_date <= $4 AND deleted_at IS NULL
		ORDER BY end_date ASC`
	if err := r.db.Select(ctx, &policies, query, tenantID, domain.StatusActive, day, day.AddDate(0, 0, days)); err != nil {
		return nil, fmt.Errorf("failed to list expiring policies: %w", err)
	}
	return policies, nil
}

// ListInForceForVehicle returns every policy of the vehicle that was ever
// activated, newest first. Cancelled and expired records stay in the
// result so compliance can answer past days from each record's in-force
// window.
func (r *PolicyRepository) ListInForceForVehicle(ctx context.Context, vehicleID string) ([]domain.Policy, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	policies := []domain.Policy{}
	query := `
		SELECT ` + policyColumns + ` FROM policies
		WHERE tenant_id = $1 AND vehicle_id = $2 AND activated_at IS NOT NULL AND deleted_at IS NULL
		ORDER BY activated_at DESC`
	if err := r.db.Select(ctx, &policies, query, tenantID, vehicleID); err != nil {
		return nil, fmt.Errorf("failed to list activated policies: %w", err)
	}
	return policies, nil
}
