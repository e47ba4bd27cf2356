// Package service implements the record lifecycle engine: draft creation,
// guarded activation, cancellation, expiry and renewal for policies and
// permits, plus premium payments.
package service

import (
	"context"
	"time"

	auditsvc "github.com/bimatrack/bimatrack-backend/internal/audit/service"
	"github.com/bimatrack/bimatrack-backend/internal/coverage/domain"
	"github.com/bimatrack/bimatrack-backend/internal/coverage/repository"
	fleetrepo "github.com/bimatrack/bimatrack-backend/internal/fleet/repository"
	identitysvc "github.com/bimatrack/bimatrack-backend/internal/identity/service"
	notificationsvc "github.com/bimatrack/bimatrack-backend/internal/notifications/service"
	"github.com/bimatrack/bimatrack-backend/pkg/actor"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
	"github.com/bimatrack/bimatrack-backend/pkg/messaging"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// EventPublisher publishes lifecycle events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// Notifier buffers in-app notifications for tenant users.
type Notifier interface {
	Enqueue(ctx context.Context, in notificationsvc.EnqueueInput) (int, error)
}

// notifyRoles receive lifecycle notices such as cancellations and pending
// payments.
var notifyRoles = []string{actor.RoleAdmin, actor.RoleManager}

// CoverageService owns policies, permits and payments.
type CoverageService struct {
	policies  *repository.PolicyRepository
	permits   *repository.PermitRepository
	payments  *repository.PaymentRepository
	vehicles  *fleetrepo.VehicleRepository
	authority *identitysvc.Authority
	db        *database.DB
	recorder  *auditsvc.Recorder
	publisher EventPublisher
	notifier  Notifier
	logger    *logger.Logger
}

// NewCoverageService creates a new coverage service
func NewCoverageService(
	policies *repository.PolicyRepository,
	permits *repository.PermitRepository,
	payments *repository.PaymentRepository,
	vehicles *fleetrepo.VehicleRepository,
	authority *identitysvc.Authority,
	db *database.DB,
	recorder *auditsvc.Recorder,
	publisher EventPublisher,
	notifier Notifier,
	log *logger.Logger,
) *CoverageService {
	return &CoverageService{
		policies:  policies,
		permits:   permits,
		payments:  payments,
		vehicles:  vehicles,
		authority: authority,
		db:        db,
		recorder:  recorder,
		publisher: publisher,
		notifier:  notifier,
		logger:    log.WithComponent("coverage"),
	}
}

// GetPolicy returns a policy by ID
func (s *CoverageService) GetPolicy(ctx context.Context, id string) (*domain.Policy, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpBusinessRead, domain.EntityKindPolicy, id); err != nil {
		return nil, err
	}
	return s.policies.GetByID(ctx, id)
}

// ListPolicies returns the tenant's policies
func (s *CoverageService) ListPolicies(ctx context.Context, f repository.ListFilter, limit, offset int) ([]domain.Policy, int64, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpBusinessRead, domain.EntityKindPolicy, ""); err != nil {
		return nil, 0, err
	}
	return s.policies.List(ctx, f, limit, offset)
}

// GetPermit returns a permit by ID
func (s *CoverageService) GetPermit(ctx context.Context, id string) (*domain.Permit, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpBusinessRead, domain.EntityKindPermit, id); err != nil {
		return nil, err
	}
	return s.permits.GetByID(ctx, id)
}

// ListPermits returns the tenant's permits
func (s *CoverageService) ListPermits(ctx context.Context, f repository.PermitListFilter, limit, offset int) ([]domain.Permit, int64, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpBusinessRead, domain.EntityKindPermit, ""); err != nil {
		return nil, 0, err
	}
	return s.permits.List(ctx, f, limit, offset)
}

// publishTransition emits a lifecycle event after the transition has
// committed. Failures are logged and swallowed; the database is the record
// of truth.
func (s *CoverageService) publishTransition(ctx context.Context, recordKind, recordID, vehicleID, from, to, eventType string) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return
	}

	event := messaging.RecordTransitionedEvent{
		TenantID:   tenantID,
		RecordKind: recordKind,
		RecordID:   recordID,
		VehicleID:  vehicleID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actingID(ctx),
		OccurredAt: time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, eventType, event); err != nil {
		s.logger.Warn().Err(err).
			Str("record_kind", recordKind).
			Str("record_id", recordID).
			Msg("failed to publish transition event")
	}
}

// notify buffers a notice for the tenant's admins and managers after the
// triggering transaction has committed. Failures are logged and swallowed;
// the mutation stands either way.
func (s *CoverageService) notify(ctx context.Context, in notificationsvc.EnqueueInput) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return
	}
	in.TenantID = tenantID
	in.Roles = notifyRoles
	if _, err := s.notifier.Enqueue(ctx, in); err != nil {
		s.logger.Warn().Err(err).Str("kind", in.Kind).Msg("failed to enqueue notification")
	}
}

func actingID(ctx context.Context) string {
	if act := actor.FromContext(ctx); act != nil {
		return act.ID
	}
	return actor.SystemActor().ID
}

func actingUserID(ctx context.Context) *string {
	if act := actor.FromContext(ctx); act != nil && !act.IsSystem() {
		id := act.ID
		return &id
	}
	return nil
}
