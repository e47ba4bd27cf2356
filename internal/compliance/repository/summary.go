package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/bimatrack/bimatrack-backend/internal/compliance/domain"
	coveragedomain "github.com/bimatrack/bimatrack-backend/internal/coverage/domain"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// SummaryRepository computes fleet-wide compliance aggregates in SQL.
type SummaryRepository struct {
	db *database.DB
}

// NewSummaryRepository creates a new summary repository
func NewSummaryRepository(db *database.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// TenantSummary buckets every active vehicle into compliant, at risk or
// non-compliant. A vehicle is covered when an active policy and all required
// permit types are in force on the given day; covered vehicles with any
// record ending inside the risk window count as at risk.
func (r *SummaryRepository) TenantSummary(ctx context.Context, asOf time.Time, requiredPermitTypes []string, riskWindowDays int) (*domain.TenantSummary, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	day := coveragedomain.DateOnly(asOf)
	windowEnd := day.AddDate(0, 0, riskWindowDays)

	query := `
		WITH fleet AS (
			SELECT v.id,
				EXISTS (
					SELECT 1 FROM policies p
					WHERE p.tenant_id = v.tenant_id AND p.vehicle_id = v.id AND p.status = 'active'
					  AND p.start_date <= $2 AND p.end_date >= $2 AND p.deleted_at IS NULL
				) AS has_policy,
				EXISTS (
					SELECT 1 FROM policies p
					WHERE p.tenant_id = v.tenant_id AND p.vehicle_id = v.id AND p.status = 'active'
					  AND p.start_date <= $2 AND p.end_date >= $2 AND p.end_date <= $3 AND p.deleted_at IS NULL
				) AS policy_expiring,
				(
					SELECT COUNT(DISTINCT pm.permit_type) FROM permits pm
					WHERE pm.tenant_id = v.tenant_id AND pm.vehicle_id = v.id AND pm.status = 'active'
					  AND pm.permit_type = ANY($4)
					  AND pm.start_date <= $2 AND pm.end_date >= $2 AND pm.deleted_at IS NULL
				) AS permits_held,
				EXISTS (
					SELECT 1 FROM permits pm
					WHERE pm.tenant_id = v.tenant_id AND pm.vehicle_id = v.id AND pm.status = 'active'
					  AND pm.permit_type = ANY($4)
					  AND pm.start_date <= $2 AND pm.end_date >= $2 AND pm.end_date <= $3 AND pm.deleted_at IS NULL
				) AS permit_expiring
			FROM vehicles v
			WHERE v.tenant_id = $1 AND v.status = 'active' AND v.deleted_at IS NULL
		)
		SELECT COUNT(*) AS total,
			COUNT(*) FILTER (WHERE has_policy AND permits_held = $5
				AND NOT policy_expiring AND NOT permit_expiring) AS compliant,
			COUNT(*) FILTER (WHERE has_policy AND permits_held = $5
				AND (policy_expiring OR permit_expiring)) AS at_risk,
			COUNT(*) FILTER (WHERE NOT has_policy OR permits_held < $5) AS non_compliant
		FROM fleet`

	var summary domain.TenantSummary
	err = r.db.Get(ctx, &summary, query,
		tenantID, day, windowEnd, pq.Array(requiredPermitTypes), len(requiredPermitTypes))
	if err != nil {
		return nil, fmt.Errorf("failed to compute compliance summary: %w", err)
	}

	summary.AsOf = day
	summary.RiskWindowDays = riskWindowDays
	return &summary, nil
}
