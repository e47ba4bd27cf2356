// Package repository runs the read-only report projections. Each query
// joins to the vehicle so report rows carry the registration plate the
// operations teams search by.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	coveragedomain "github.com/bimatrack/bimatrack-backend/internal/coverage/domain"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// ReportRepository runs report projections
type ReportRepository struct {
	db *database.DB
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *database.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// PolicyRow is one line of the policy report.
type PolicyRow struct {
	PolicyID          string          `db:"policy_id" json:"policy_id"`
	PolicyNumber      string          `db:"policy_number" json:"policy_number"`
	VehicleID         string          `db:"vehicle_id" json:"vehicle_id"`
	RegistrationPlate string          `db:"registration_plate" json:"registration_plate"`
	Status            string          `db:"status" json:"status"`
	StartDate         time.Time       `db:"start_date" json:"start_date"`
	EndDate           time.Time       `db:"end_date" json:"end_date"`
	PremiumAmount     decimal.Decimal `db:"premium_amount" json:"premium_amount"`
}

// PoliciesByStatus returns the tenant's policies in one status, joined to
// their vehicles, ending soonest first.
func (r *ReportRepository) PoliciesByStatus(ctx context.Context, status string, limit, offset int) ([]PolicyRow, int64, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	countQuery := `
		SELECT COUNT(*) FROM policies p
		WHERE p.tenant_id = $1 AND p.status = $2 AND p.deleted_at IS NULL`
	if err := r.db.Get(ctx, &total, countQuery, tenantID, status); err != nil {
		return nil, 0, fmt.Errorf("failed to count policy report rows: %w", err)
	}

	rows := []PolicyRow{}
	query := `
		SELECT p.id AS policy_id, p.policy_number, p.vehicle_id, v.registration_plate,
			p.status, p.start_date, p.end_date, p.premium_amount
		FROM policies p
		JOIN vehicles v ON v.id = p.vehicle_id AND v.tenant_id = p.tenant_id
		WHERE p.tenant_id = $1 AND p.status = $2 AND p.deleted_at IS NULL
		ORDER BY p.end_date ASC
		LIMIT $3 OFFSET $4`
	if err := r.db.Select(ctx, &rows, query, tenantID, status, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to run policy report: %w", err)
	}
	return rows, total, nil
}

// ExpiringRow is one line of the expiring records report.
type ExpiringRow struct {
	RecordKind        string    `db:"record_kind" json:"record_kind"`
	RecordID          string    `db:"record_id" json:"record_id"`
	Reference         string    `db:"reference" json:"reference"`
	VehicleID         string    `db:"vehicle_id" json:"vehicle_id"`
	RegistrationPlate string    `db:"registration_plate" json:"registration_plate"`
	EndDate           time.Time `db:"end_date" json:"end_date"`
}

// ExpiringRecords returns active policies and permits ending inside the
// window [asOf, asOf+days], soonest first.
func (r *ReportRepository) ExpiringRecords(ctx context.Context, asOf time.Time, days int) ([]ExpiringRow, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	day := coveragedomain.DateOnly(asOf)
	windowEnd := day.AddDate(0, 0, days)

	rows := []ExpiringRow{}
	query := `
		SELECT 'policy' AS record_kind, p.id AS record_id, p.policy_number AS reference,
			p.vehicle_id, v.registration_plate, p.end_date
		FROM policies p
		JOIN vehicles v ON v.id = p.vehicle_id AND v.tenant_id = p.tenant_id
		WHERE p.tenant_id = $1 AND p.status = 'active'
		  AND p.end_date >= $2 AND p.end_date <= $3 AND p.deleted_at IS NULL
		UNION ALL
		SELECT 'permit', pm.id, pm.permit_type || '/' || pm.reference_number,
			pm.vehicle_id, v.registration_plate, pm.end_date
		FROM permits pm
		JOIN vehicles v ON v.id = pm.vehicle_id AND v.tenant_id = pm.tenant_id
		WHERE pm.tenant_id = $1 AND pm.status = 'active'
		  AND pm.end_date >= $2 AND pm.end_date <= $3 AND pm.deleted_at IS NULL
		ORDER BY end_date ASC`
	if err := r.db.Select(ctx, &rows, query, tenantID, day, windowEnd); err != nil {
		return nil, fmt.Errorf("failed to run expiring records report: %w", err)
	}
	return rows, nil
}

// RegistrationRow is one line of the vehicle registrations report.
type RegistrationRow struct {
	VehicleID         string    `db:"vehicle_id" json:"vehicle_id"`
	RegistrationPlate string    `db:"registration_plate" json:"registration_plate"`
	VehicleType       string    `db:"vehicle_type" json:"vehicle_type"`
	Status            string    `db:"status" json:"status"`
	OwnerName         *string   `db:"owner_name" json:"owner_name,omitempty"`
	RegisteredAt      time.Time `db:"registered_at" json:"registered_at"`
}

// RegistrationsInRange returns vehicles registered inside [from, to],
// newest first, with their current owner when one is on record.
func (r *ReportRepository) RegistrationsInRange(ctx context.Context, from, to time.Time, limit, offset int) ([]RegistrationRow, int64, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	countQuery := `
		SELECT COUNT(*) FROM vehicles v
		WHERE v.tenant_id = $1 AND v.created_at >= $2 AND v.created_at <= $3 AND v.deleted_at IS NULL`
	if err := r.db.Get(ctx, &total, countQuery, tenantID, from, to); err != nil {
		return nil, 0, fmt.Errorf("failed to count registration report rows: %w", err)
	}

	rows := []RegistrationRow{}
	query := `
		SELECT v.id AS vehicle_id, v.registration_plate, v.vehicle_type, v.status,
			c.display_name AS owner_name, v.created_at AS registered_at
		FROM vehicles v
		LEFT JOIN ownerships o ON o.vehicle_id = v.id AND o.tenant_id = v.tenant_id
			AND o.to_ts IS NULL AND o.deleted_at IS NULL
		LEFT JOIN customers c ON c.id = o.customer_id AND c.tenant_id = v.tenant_id
		WHERE v.tenant_id = $1 AND v.created_at >= $2 AND v.created_at <= $3 AND v.deleted_at IS NULL
		ORDER BY v.created_at DESC
		LIMIT $4 OFFSET $5`
	if err := r.db.Select(ctx, &rows, query, tenantID, from, to, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to run registration report: %w", err)
	}
	return rows, total, nil
}

// LedgerRow is one line of the payments ledger.
type LedgerRow struct {
	PaymentID         string          `db:"payment_id" json:"payment_id"`
	PolicyID          string          `db:"policy_id" json:"policy_id"`
	PolicyNumber      string          `db:"policy_number" json:"policy_number"`
	RegistrationPlate string          `db:"registration_plate" json:"registration_plate"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	ReceivedAt        time.Time       `db:"received_at" json:"received_at"`
	Verified          bool            `db:"verified" json:"verified"`
	Reference         string          `db:"reference" json:"reference"`
}

// PaymentsLedger returns payments received inside [from, to], newest first,
// together with the period's verified and unverified totals.
func (r *ReportRepository) PaymentsLedger(ctx context.Context, from, to time.Time, limit, offset int) ([]LedgerRow, int64, decimal.Decimal, decimal.Decimal, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, 0, decimal.Zero, decimal.Zero, err
	}

	var totals struct {
		Count      int64           `db:"count"`
		Verified   decimal.Decimal `db:"verified"`
		Unverified decimal.Decimal `db:"unverified"`
	}
	totalsQuery := `
		SELECT COUNT(*) AS count,
			COALESCE(SUM(amount) FILTER (WHERE verified_at IS NOT NULL), 0) AS verified,
			COALESCE(SUM(amount) FILTER (WHERE verified_at IS NULL), 0) AS unverified
		FROM payments
		WHERE tenant_id = $1 AND received_at >= $2 AND received_at <= $3 AND deleted_at IS NULL`
	if err := r.db.Get(ctx, &totals, totalsQuery, tenantID, from, to); err != nil {
		return nil, 0, decimal.Zero, decimal.Zero, fmt.Errorf("failed to total payments ledger: %w", err)
	}

	rows := []LedgerRow{}
	query := `
		SELECT pay.id AS payment_id, pay.policy_id, p.policy_number, v.registration_plate,
			pay.amount, pay.received_at, pay.verified_at IS NOT NULL AS verified, pay.reference
		FROM payments pay
		JOIN policies p ON p.id = pay.policy_id AND p.tenant_id = pay.tenant_id
		JOIN vehicles v ON v.id = p.vehicle_id AND v.tenant_id = pay.tenant_id
		WHERE pay.tenant_id = $1 AND pay.received_at >= $2 AND pay.received_at <= $3 AND pay.deleted_at IS NULL
		ORDER BY pay.received_at DESC
		LIMIT $4 OFFSET $5`
	if err := r.db.Select(ctx, &rows, query, tenantID, from, to, limit, offset); err != nil {
		return nil, 0, decimal.Zero, decimal.Zero, fmt.Errorf("failed to run payments ledger: %w", err)
	}

	return rows, totals.Count, totals.Verified, totals.Unverified, nil
}
