package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/bimatrack/bimatrack-backend/internal/coverage/domain"
	identitysvc "github.com/bimatrack/bimatrack-backend/internal/identity/service"
	notificationdomain "github.com/bimatrack/bimatrack-backend/internal/notifications/domain"
	notificationsvc "github.com/bimatrack/bimatrack-backend/internal/notifications/service"
	"github.com/bimatrack/bimatrack-backend/pkg/actor"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/messaging"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// PermitInput is the input for creating or editing a draft permit
type PermitInput struct {
	VehicleID        string    `json:"vehicle_id" validate:"required,uuid"`
	PermitType       string    `json:"permit_type" validate:"required"`
	ReferenceNumber  string    `json:"reference_number" validate:"required,max=64"`
	IssuingAuthority string    `json:"issuing_authority,omitempty" validate:"max=128"`
	StartDate        time.Time `json:"start_date" validate:"required"`
	EndDate          time.Time `json:"end_date" validate:"required"`
}

// permitTypePattern keeps permit types machine-friendly. The set itself is
// open so tenants can require authority documents we have no constant for.
var permitTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)

func (in PermitInput) validate() error {
	details := map[string]string{}
	if !permitTypePattern.MatchString(in.PermitType) {
		details["permit_type"] = "must be lowercase snake_case"
	}
	if !in.EndDate.After(in.StartDate) {
		details["end_date"] = "must be after start date"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

func (in PermitInput) apply(p *domain.Permit) {
	p.VehicleID = in.VehicleID
	p.PermitType = in.PermitType
	p.ReferenceNumber = in.ReferenceNumber
	p.IssuingAuthority = in.IssuingAuthority
	p.StartDate = domain.DateOnly(in.StartDate)
	p.EndDate = domain.DateOnly(in.EndDate)
}

// CreatePermitDraft creates a new draft permit.
func (s *CoverageService) CreatePermitDraft(ctx context.Context, in PermitInput) (*domain.Permit, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpRecordDraft, domain.EntityKindPermit, ""); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	if _, err := s.vehicles.GetByID(ctx, in.VehicleID); err != nil {
		return nil, err
	}

	p := &domain.Permit{Status: domain.StatusDraft}
	in.apply(p)

	err := s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.permits.Create(ctx, p); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, domain.EntityKindPermit, p.ID, "create", nil, p); err != nil {
			return err
		}
		return s.recorder.Snapshot(ctx, domain.EntityKindPermit, p.ID, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("permit_id", p.ID).Str("permit_type", p.PermitType).Msg("permit draft created")
	return p, nil
}

// UpdatePermitDraft edits a draft permit. Permits have no payment stage, so
// anything past draft is immutable.
func (s *CoverageService) UpdatePermitDraft(ctx context.Context, id string, in PermitInput) (*domain.Permit, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpRecordDraft, domain.EntityKindPermit, id); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	before, err := s.permits.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if before.IsImmutable() {
		if auditErr := s.recorder.RecordRejected(ctx, domain.EntityKindPermit, id, "update", guardImmutable); auditErr != nil {
			s.logger.Error().Err(auditErr).Str("permit_id", id).Msg("failed to audit rejected edit")
		}
		return nil, errors.Immutable("permit is immutable after activation; cancel and reissue instead")
	}

	if _, err := s.vehicles.GetByID(ctx, in.VehicleID); err != nil {
		return nil, err
	}

	after := *before
	in.apply(&after)

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.permits.UpdateDraft(ctx, &after); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, domain.EntityKindPermit, id, "update", before, &after); err != nil {
			return err
		}
		return s.recorder.Snapshot(ctx, domain.EntityKindPermit, id, &after)
	})
	if err != nil {
		return nil, err
	}

	return &after, nil
}

// ActivatePermit runs the guarded draft -> active transition. There is no
// payment guard; the checks are transition validity, per-type overlap and
// the date window.
func (s *CoverageService) ActivatePermit(ctx context.Context, id string) (*domain.Permit, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpRecordActivate, domain.EntityKindPermit, id); err != nil {
		return nil, err
	}

	p, err := s.permits.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if !p.CanTransition(domain.StatusActive) {
		return nil, s.rejectPermit(ctx, id, guardInvalidTransition,
			errors.InvalidTransition("permit cannot move from "+p.Status+" to active"))
	}

	if exists, err := s.permits.HasActiveForVehicleType(ctx, p.VehicleID, p.PermitType); err != nil {
		return nil, err
	} else if exists {
		return nil, s.rejectPermit(ctx, id, guardOverlap,
			errors.Overlap("vehicle already has an active "+p.PermitType+" permit"))
	}

	if !domain.DateOnly(p.EndDate).After(domain.DateOnly(now)) {
		return nil, s.rejectPermit(ctx, id, guardDateWindow,
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
		if err := s.db.AdvisoryXactLock(ctx, "permit:"+tenantID+":"+p.VehicleID+":"+p.PermitType); err != nil {
			return err
		}
		if exists, err := s.permits.HasActiveForVehicleType(ctx, p.VehicleID, p.PermitType); err != nil {
			return err
		} else if exists {
			return errors.Overlap("vehicle already has an active " + p.PermitType + " permit")
		}

		if err := s.permits.SaveTransition(ctx, p, from); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, domain.EntityKindPermit, id, "transition",
			map[string]string{"status": from}, map[string]string{"status": p.Status}); err != nil {
			return err
		}
		return s.recorder.Snapshot(ctx, domain.EntityKindPermit, id, p)
	})
	if err != nil {
		return nil, err
	}

	s.publishTransition(ctx, domain.EntityKindPermit, id, p.VehicleID, from, p.Status, messaging.EventPermitActivated)
	s.logger.Info().Str("permit_id", id).Str("vehicle_id", p.VehicleID).Msg("permit activated")
	return p, nil
}

// CancelPermit cancels a permit with a reason from the permit reason set.
// Cancelling a record that is already cancelled or expired is rejected as
// an invalid transition.
func (s *CoverageService) CancelPermit(ctx context.Context, id, reason, note string) (*domain.Permit, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpRecordCancel, domain.EntityKindPermit, id); err != nil {
		return nil, err
	}

	if !domain.ValidPermitCancellationReason(reason) {
		return nil, errors.Validation(map[string]string{"reason": "unknown permit cancellation reason"})
	}

	p, err := s.permits.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanTransition(domain.StatusCancelled) {
		return nil, s.rejectPermit(ctx, id, guardInvalidTransition,
			errors.InvalidTransition("permit cannot move from "+p.Status+" to cancelled"))
	}

	now := time.Now().UTC()
	from := p.Status
	p.Status = domain.StatusCancelled
	p.CancelledAt = &now
	p.CancelledBy = actingUserID(ctx)
	p.CancellationReason = reason
	p.CancellationNote = note

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.permits.SaveTransition(ctx, p, from); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, domain.EntityKindPermit, id, "transition",
			map[string]string{"status": from}, map[string]string{"status": p.Status, "reason": reason}); err != nil {
			return err
		}
		return s.recorder.Snapshot(ctx, domain.EntityKindPermit, id, p)
	})
	if err != nil {
		return nil, err
	}

	s.publishTransition(ctx, domain.EntityKindPermit, id, p.VehicleID, from, p.Status, messaging.EventPermitCancelled)
	s.notify(ctx, notificationsvc.EnqueueInput{
		Kind:      notificationdomain.KindCancellation,
		Priority:  notificationdomain.PriorityHigh,
		Title:     "Permit cancelled",
		Message:   fmt.Sprintf("%s permit %s was cancelled (%s)", p.PermitType, p.ReferenceNumber, reason),
		PermitID:  &p.ID,
		VehicleID: &p.VehicleID,
		DedupeKey: "cancellation:permit:" + p.ID,
	})
	return p, nil
}

// ExpirePermit moves an active permit past its end date to expired. Only
// the background reconciler performs this transition.
func (s *CoverageService) ExpirePermit(ctx context.Context, p *domain.Permit) error {
	act := actor.FromContext(ctx)
	if act == nil || !act.IsSystem() {
		return errors.Forbidden("expiry is a system transition")
	}
	if !p.CanTransition(domain.StatusExpired) {
		return errors.InvalidTransition("permit cannot move from " + p.Status + " to expired")
	}

	from := p.Status
	p.Status = domain.StatusExpired

	err := s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.permits.SaveTransition(ctx, p, from); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, domain.EntityKindPermit, p.ID, "transition",
			map[string]string{"status": from}, map[string]string{"status": p.Status}); err != nil {
			return err
		}
		return s.recorder.Snapshot(ctx, domain.EntityKindPermit, p.ID, p)
	})
	if err != nil {
		return err
	}

	s.publishTransition(ctx, domain.EntityKindPermit, p.ID, p.VehicleID, from, p.Status, messaging.EventPermitExpired)
	return nil
}

func (s *CoverageService) rejectPermit(ctx context.Context, id, guard string, cause error) error {
	if err := s.recorder.RecordRejected(ctx, domain.EntityKindPermit, id, "transition", guard); err != nil {
		s.logger.Error().Err(err).Str("permit_id", id).Str("guard", guard).Msg("failed to audit rejected transition")
	}
	return cause
}
