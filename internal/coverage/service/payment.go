package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bimatrack/bimatrack-backend/internal/coverage/domain"
	identitysvc "github.com/bimatrack/bimatrack-backend/internal/identity/service"
	notificationdomain "github.com/bimatrack/bimatrack-backend/internal/notifications/domain"
	notificationsvc "github.com/bimatrack/bimatrack-backend/internal/notifications/service"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
)

// PaymentInput records money received against a policy.
type PaymentInput struct {
	Amount     decimal.Decimal `json:"amount" validate:"required"`
	ReceivedAt *time.Time      `json:"received_at,omitempty"`
	Reference  string          `json:"reference,omitempty" validate:"max=128"`
}

// RecordPayment records a payment against a policy awaiting payment or
// already active. Cancelled and expired policies take no further money.
func (s *CoverageService) RecordPayment(ctx context.Context, policyID string, in PaymentInput) (*domain.Payment, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpPaymentRecord, domain.EntityKindPayment, ""); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, errors.Validation(map[string]string{"amount": "must be positive"})
	}

	policy, err := s.policies.GetByID(ctx, policyID)
	if err != nil {
		return nil, err
	}
	switch policy.Status {
	case domain.StatusCancelled, domain.StatusExpired:
		return nil, errors.Conflict("policy is " + policy.Status + " and takes no further payments")
	}

	receivedAt := time.Now().UTC()
	if in.ReceivedAt != nil {
		receivedAt = in.ReceivedAt.UTC()
	}

	payment := &domain.Payment{
		PolicyID:   policyID,
		Amount:     in.Amount,
		ReceivedAt: receivedAt,
		Reference:  in.Reference,
	}

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.payments.Create(ctx, payment); err != nil {
			return err
		}
		return s.recorder.Record(ctx, domain.EntityKindPayment, payment.ID, "create", nil, payment)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, notificationsvc.EnqueueInput{
		Kind:      notificationdomain.KindPaymentPending,
		Priority:  notificationdomain.PriorityMedium,
		Title:     "Payment awaiting verification",
		Message:   fmt.Sprintf("Payment of %s against policy %s awaits verification", in.Amount.String(), policy.PolicyNumber),
		PolicyID:  &policyID,
		DedupeKey: "payment_pending:" + payment.ID,
	})
	s.logger.Info().
		Str("payment_id", payment.ID).
		Str("policy_id", policyID).
		Str("amount", in.Amount.String()).
		Msg("payment recorded")
	return payment, nil
}

// VerifyPayment marks a payment as verified by the acting user. Verifying
// twice is a no-op and keeps the original verifier.
func (s *CoverageService) VerifyPayment(ctx context.Context, id string) (*domain.Payment, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpPaymentVerify, domain.EntityKindPayment, id); err != nil {
		return nil, err
	}

	verifier := actingUserID(ctx)
	if verifier == nil {
		return nil, errors.Forbidden("payment verification requires a user actor")
	}

	before, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var after *domain.Payment
	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		after, err = s.payments.Verify(ctx, id, *verifier)
		if err != nil {
			return err
		}
		if before.IsVerified() {
			return nil
		}
		return s.recorder.Record(ctx, domain.EntityKindPayment, id, "update", before, after)
	})
	if err != nil {
		return nil, err
	}

	return after, nil
}

// GetPayment returns a payment by ID
func (s *CoverageService) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpBusinessRead, domain.EntityKindPayment, id); err != nil {
		return nil, err
	}
	return s.payments.GetByID(ctx, id)
}

// ListPayments returns all payments against a policy together with the
// verified total.
func (s *CoverageService) ListPayments(ctx context.Context, policyID string) ([]domain.Payment, decimal.Decimal, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpBusinessRead, domain.EntityKindPayment, ""); err != nil {
		return nil, decimal.Zero, err
	}

	if _, err := s.policies.GetByID(ctx, policyID); err != nil {
		return nil, decimal.Zero, err
	}
	payments, err := s.payments.ListByPolicy(ctx, policyID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	verified, err := s.payments.SumVerified(ctx, policyID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return payments, verified, nil
}
