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
	"github.com/bimatrack/bimatrack-backend/pkg/actor"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/messaging"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// Guard rejection reasons recorded in the audit trail.
const (
	guardInvalidTransition = "guard:invalid_transition"
	guardPaymentIncomplete = "guard:payment_incomplete"
	guardOverlap           = "guard:overlap"
	guardDateWindow        = "guard:date_window"
	guardImmutable         = "guard:immutable"
)

// PolicyInput is the input for creating or editing a draft policy
type PolicyInput struct {
	VehicleID      string           `json:"vehicle_id" validate:"required,uuid"`
	StartDate      time.Time        `json:"start_date" validate:"required"`
	EndDate        time.Time        `json:"end_date" validate:"required"`
	PremiumAmount  decimal.Decimal  `json:"premium_amount" validate:"required"`
	CoverageAmount *decimal.Decimal `json:"coverage_amount,omitempty"`
	PolicyType     string           `json:"policy_type,omitempty" validate:"max=64"`
	Notes          string           `json:"notes,omitempty" validate:"max=2000"`
}

func (in PolicyInput) validate() error {
	details := map[string]string{}
	if !in.EndDate.After(in.StartDate) {
		details["end_date"] = "must be after start date"
	}
	if !in.PremiumAmount.IsPositive() {
		details["premium_amount"] = "must be positive"
	}
	if in.CoverageAmount != nil && !in.CoverageAmount.IsPositive() {
		details["coverage_amount"] = "must be positive"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

func (in PolicyInput) apply(p *domain.Policy) {
	p.VehicleID = in.VehicleID
	p.StartDate = domain.DateOnly(in.StartDate)
	p.EndDate = domain.DateOnly(in.EndDate)
	p.PremiumAmount = in.PremiumAmount
	p.PolicyType = in.PolicyType
	p.Notes = in.Notes
	if in.CoverageAmount != nil {
		p.CoverageAmount = decimal.NewNullDecimal(*in.CoverageAmount)
	} else {
		p.CoverageAmount = decimal.NullDecimal{}
	}
}

// CreatePolicyDraft creates a new draft policy with a generated policy
// number.
func (s *CoverageService) CreatePolicyDraft(ctx context.Context, in PolicyInput) (*domain.Policy, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpRecordDraft, domain.EntityKindPolicy, ""); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	active, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := s.vehicles.GetByID(ctx, in.VehicleID); err != nil {
		return nil, err
	}

	p := &domain.Policy{Status: domain.StatusDraft}
	in.apply(p)

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		year := p.StartDate.Year()
		seq, err := s.policies.NextSequence(ctx, year)
		if err != nil {
			return err
		}
		p.PolicyNumber = domain.FormatPolicyNumber(year, active.Slug, seq)

		if err := s.policies.Create(ctx, p); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, domain.EntityKindPolicy, p.ID, "create", nil, p); err != nil {
			return err
		}
		return s.recorder.Snapshot(ctx, domain.EntityKindPolicy, p.ID, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("policy_id", p.ID).Str("policy_number", p.PolicyNumber).Msg("policy draft created")
	return p, nil
}

// UpdatePolicyDraft edits a draft or pending-payment policy. Anything past
// that is immutable and the attempt is audited.
func (s *CoverageService) UpdatePolicyDraft(ctx context.Context, id string, in PolicyInput) (*domain.Policy, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpRecordDraft, domain.EntityKindPolicy, id); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	before, err := s.policies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if before.IsImmutable() {
		if auditErr := s.recorder.RecordRejected(ctx, domain.EntityKindPolicy, id, "update", guardImmutable); auditErr != nil {
			s.logger.Error().Err(auditErr).Str("policy_id", id).Msg("failed to audit rejected edit")
		}
		return nil, errors.Immutable("policy is immutable after activation; cancel and reissue instead")
	}

	if _, err := s.vehicles.GetByID(ctx, in.VehicleID); err != nil {
		return nil, err
	}

	after := *before
	in.apply(&after)

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.policies.UpdateDraft(ctx, &after); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, domain.EntityKindPolicy, id, "update", before, &after); err != nil {
			return err
		}
		return s.recorder.Snapshot(ctx, domain.EntityKindPolicy, id, &after)
	})
	if err != nil {
		return nil, err
	}

	return &after, nil
}

// SubmitPolicy moves a draft policy into pending_payment, opening it for
// premium collection.
func (s *CoverageService) SubmitPolicy(ctx context.Context, id string) (*domain.Policy, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpRecordDraft, domain.EntityKindPolicy, id); err != nil {
		return nil, err
	}

	p, err := s.policies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanTransition(domain.StatusPendingPayment) {
		if auditErr := s.recorder.RecordRejected(ctx, domain.EntityKindPolicy, id, "transition", guardInvalidTransition); auditErr != nil {
			s.logger.Error().Err(auditErr).Str("policy_id", id).Msg("failed to audit rejected transition")
		}
		return nil, errors.InvalidTransition("policy cannot move from " + p.Status + " to pending_payment")
	}

	from := p.Status
	p.Status = domain.StatusPendingPayment

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.policies.SaveTransition(ctx, p, from); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, domain.EntityKindPolicy, id, "transition",
			map[string]string{"status": from}, map[string]string{"status": p.Status}); err != nil {
			return err
		}
		return s.recorder.Snapshot(ctx, domain.EntityKindPolicy, id, p)
	})
	if err != nil {
		return nil, err
	}

	return p, nil
}

// ActivatePolicy runs the guarded activation. Guard order is fixed:
// authority, transition validity, payment, overlap, date window. Each
// rejection is audited with the guard that fired.
func (s *CoverageService) ActivatePolicy(ctx context.Context, id string) (*domain.Policy, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpRecordActivate, domain.EntityKindPolicy, id); err != nil {
		return nil, err
	}

	p, err := s.policies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if !p.CanTransition(domain.StatusActive) {
		return nil, s.rejectPolicy(ctx, id, guardInvalidTransition,
			errors.InvalidTransition("policy cannot move from "+p.Status+" to active"))
	}

	paid, err := s.payments.SumVerified(ctx, id)
	if err != nil {
		return nil, err
	}
	if paid.LessThan(p.PremiumAmount) {
		return nil, s.rejectPolicy(ctx, id, guardPaymentIncomplete,
			errors.PaymentIncomplete("verified payments cover "+paid.String()+" of premium "+p.PremiumAmount.String()))
	}

	if exists, err := s.policies.HasActiveForVehicle(ctx, p.VehicleID); err != nil {
		return nil, err
	} else if exists {
		return nil, s.rejectPolicy(ctx, id, guardOverlap,
			errors.Overlap("vehicle already has an active policy"))
	}

	if !domain.DateOnly(p.EndDate).After(domain.DateOnly(now)) {
		return nil, s.rejectPolicy(ctx, id, guardDateWindow,
			errors.Validation(map[string]string{"end_date": "must end after today"}))
	}

	from := p.Status
	p.Status = domain.StatusActive
	p.ActivatedAt = &now

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		tenantID, err := tenant.IDFromContext(ctx)
		if err != nil {
			return err
		}
		// Serialize concurrent activations for the same vehicle. The
		// partial unique index is the final authority either way.
		if err := s.db.AdvisoryXactLock(ctx, "policy:"+tenantID+":"+p.VehicleID); err != nil {
			return err
		}
		if exists, err := s.policies.HasActiveForVehicle(ctx, p.VehicleID); err != nil {
			return err
		} else if exists {
			return errors.Overlap("vehicle already has an active policy")
		}

		if err := s.policies.SaveTransition(ctx, p, from); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, domain.EntityKindPolicy, id, "transition",
			map[string]string{"status": from}, map[string]string{"status": p.Status}); err != nil {
			return err
		}
		return s.recorder.Snapshot(ctx, domain.EntityKindPolicy, id, p)
	})
	if err != nil {
		return nil, err
	}

	s.publishTransition(ctx, domain.EntityKindPolicy, id, p.VehicleID, from, p.Status, messaging.EventPolicyActivated)
	s.logger.Info().Str("policy_id", id).Str("vehicle_id", p.VehicleID).Msg("policy activated")
	return p, nil
}

// CancelPolicy cancels a policy with a reason from the policy reason set.
// Cancelling a record that is already cancelled or expired is rejected as
// an invalid transition.
func (s *CoverageService) CancelPolicy(ctx context.Context, id, reason, note string) (*domain.Policy, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpRecordCancel, domain.EntityKindPolicy, id); err != nil {
		return nil, err
	}

	if !domain.ValidPolicyCancellationReason(reason) {
		return nil, errors.Validation(map[string]string{"reason": "unknown policy cancellation reason"})
	}

	p, err := s.policies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanTransition(domain.StatusCancelled) {
		return nil, s.rejectPolicy(ctx, id, guardInvalidTransition,
			errors.InvalidTransition("policy cannot move from "+p.Status+" to cancelled"))
	}

	now := time.Now().UTC()
	from := p.Status
	p.Status = domain.StatusCancelled
	p.CancelledAt = &now
	p.CancelledBy = actingUserID(ctx)
	p.CancellationReason = reason
	p.CancellationNote = note

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.policies.SaveTransition(ctx, p, from); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, domain.EntityKindPolicy, id, "transition",
			map[string]string{"status": from}, map[string]string{"status": p.Status, "reason": reason}); err != nil {
			return err
		}
		return s.recorder.Snapshot(ctx, domain.EntityKindPolicy, id, p)
	})
	if err != nil {
		return nil, err
	}

	s.publishTransition(ctx, domain.EntityKindPolicy, id, p.VehicleID, from, p.Status, messaging.EventPolicyCancelled)
	s.notify(ctx, notificationsvc.EnqueueInput{
		Kind:      notificationdomain.KindCancellation,
		Priority:  notificationdomain.PriorityHigh,
		Title:     "Policy cancelled",
		Message:   fmt.Sprintf("Policy %s was cancelled (%s)", p.PolicyNumber, reason),
		PolicyID:  &p.ID,
		VehicleID: &p.VehicleID,
		DedupeKey: "cancellation:policy:" + p.ID,
	})
	return p, nil
}

// ExpirePolicy moves an active policy past its end date to expired. Only
// the background reconciler performs this transition.
func (s *CoverageService) ExpirePolicy(ctx context.Context, p *domain.Policy) error {
	act := actor.FromContext(ctx)
	if act == nil || !act.IsSystem() {
		return errors.Forbidden("expiry is a system transition")
	}
	if !p.CanTransition(domain.StatusExpired) {
		return errors.InvalidTransition("policy cannot move from " + p.Status + " to expired")
	}

	from := p.Status
	p.Status = domain.StatusExpired

	err := s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.policies.SaveTransition(ctx, p, from); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, domain.EntityKindPolicy, p.ID, "transition",
			map[string]string{"status": from}, map[string]string{"status": p.Status}); err != nil {
			return err
		}
		return s.recorder.Snapshot(ctx, domain.EntityKindPolicy, p.ID, p)
	})
	if err != nil {
		return err
	}

	s.publishTransition(ctx, domain.EntityKindPolicy, p.ID, p.VehicleID, from, p.Status, messaging.EventPolicyExpired)
	return nil
}

// RenewalInput optionally overrides the successor's terms.
type RenewalInput struct {
	PremiumAmount  *decimal.Decimal `json:"premium_amount,omitempty"`
	CoverageAmount *decimal.Decimal `json:"coverage_amount,omitempty"`
	Notes          *string          `json:"notes,omitempty"`
}

// RenewPolicy drafts the successor of an active or expired policy. The
// successor starts at the predecessor's end date plus the tenant's renewal
// boundary and runs for the same term length.
func (s *CoverageService) RenewPolicy(ctx context.Context, id string, in RenewalInput) (*domain.Policy, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpRecordDraft, domain.EntityKindPolicy, id); err != nil {
		return nil, err
	}

	active, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	source, err := s.policies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if source.Status != domain.StatusActive && source.Status != domain.StatusExpired {
		return nil, errors.InvalidTransition("only active or expired policies can be renewed")
	}

	boundary := active.RenewalBoundaryDays()
	term := domain.DateOnly(source.EndDate).Sub(domain.DateOnly(source.StartDate))
	start := domain.DateOnly(source.EndDate).AddDate(0, 0, boundary)
	end := start.Add(term)

	successor := &domain.Policy{
		VehicleID:      source.VehicleID,
		StartDate:      start,
		EndDate:        end,
		PremiumAmount:  source.PremiumAmount,
		CoverageAmount: source.CoverageAmount,
		PolicyType:     source.PolicyType,
		Notes:          source.Notes,
		Status:         domain.StatusDraft,
		RenewedFrom:    &source.ID,
	}
	if in.PremiumAmount != nil {
		if !in.PremiumAmount.IsPositive() {
			return nil, errors.Validation(map[string]string{"premium_amount": "must be positive"})
		}
		successor.PremiumAmount = *in.PremiumAmount
	}
	if in.CoverageAmount != nil {
		successor.CoverageAmount = decimal.NewNullDecimal(*in.CoverageAmount)
	}
	if in.Notes != nil {
		successor.Notes = *in.Notes
	}

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		year := successor.StartDate.Year()
		seq, err := s.policies.NextSequence(ctx, year)
		if err != nil {
			return err
		}
		successor.PolicyNumber = domain.FormatPolicyNumber(year, active.Slug, seq)

		if err := s.policies.Create(ctx, successor); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, domain.EntityKindPolicy, successor.ID, "create",
			nil, successor); err != nil {
			return err
		}
		return s.recorder.Snapshot(ctx, domain.EntityKindPolicy, successor.ID, successor)
	})
	if err != nil {
		return nil, err
	}

	s.publishTransition(ctx, domain.EntityKindPolicy, successor.ID, successor.VehicleID,
		source.Status, successor.Status, messaging.EventPolicyRenewed)
	s.logger.Info().
		Str("policy_id", successor.ID).
		Str("renewed_from", source.ID).
		Msg("policy renewed")
	return successor, nil
}

// rejectPolicy audits a guard rejection and returns the guard's error. The
// audit write happens outside any transaction so the rejection survives.
func (s *CoverageService) rejectPolicy(ctx context.Context, id, guard string, cause error) error {
	if err := s.recorder.RecordRejected(ctx, domain.EntityKindPolicy, id, "transition", guard); err != nil {
		s.logger.Error().Err(err).Str("policy_id", id).Str("guard", guard).Msg("failed to audit rejected transition")
	}
	return cause
}
