package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bimatrack/bimatrack-backend/internal/coverage/domain"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// PaymentRepository handles payment persistence
type PaymentRepository struct {
	db *database.DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *database.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, tenant_id, policy_id, amount, received_at, verified_at, verified_by,
	reference, created_at, updated_at, deleted_at`

// Create records a payment against a policy
func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return err
	}
	p.TenantID = tenantID

	query := `
		INSERT INTO payments (tenant_id, policy_id, amount, received_at, reference)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRowx(ctx, query, p.TenantID, p.PolicyID, p.Amount, p.ReceivedAt, p.Reference).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetByID returns a payment in the bound tenant
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var p domain.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`

	if err := r.db.Get(ctx, &p, query, id, tenantID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("payment")
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

// ListByPolicy returns all payments against a policy, oldest first
func (r *PaymentRepository) ListByPolicy(ctx context.Context, policyID string) ([]domain.Payment, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	payments := []domain.Payment{}
	query := `
		SELECT ` + paymentColumns + ` FROM payments
		WHERE policy_id = $1 AND tenant_id = $2 AND deleted_at IS NULL
		ORDER BY received_at ASC`
	if err := r.db.Select(ctx, &payments, query, policyID, tenantID); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// Verify marks a payment verified by the acting user. Verifying an already
// verified payment is a no-op.
func (r *PaymentRepository) Verify(ctx context.Context, id, verifierID string) (*domain.Payment, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var p domain.Payment
	query := `
		UPDATE payments
		SET verified_at = COALESCE(verified_at, NOW()),
		    verified_by = COALESCE(verified_by, $3),
		    updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL
		RETURNING ` + paymentColumns

	if err := r.db.Get(ctx, &p, query, id, tenantID, verifierID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("payment")
		}
		return nil, fmt.Errorf("failed to verify payment: %w", err)
	}
	return &p, nil
}

// SumVerified returns the verified total paid against a policy.
func (r *PaymentRepository) SumVerified(ctx context.Context, policyID string) (decimal.Decimal, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	var sum decimal.Decimal
	query := `
		SELECT COALESCE(SUM(amount), 0) FROM payments
		WHERE policy_id = $1 AND tenant_id = $2 AND verified_at IS NOT NULL AND deleted_at IS NULL`
	if err := r.db.Get(ctx, &sum, query, policyID, tenantID); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum verified payments: %w", err)
	}
	return sum, nil
}
