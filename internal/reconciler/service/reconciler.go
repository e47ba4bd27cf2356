// Package service runs the background reconciler. On every tick it sweeps
// each tenant, expiring records whose end date has passed and buffering
// expiry reminders for records ending inside the tenant's risk window.
package service

import (
	"context"
	"fmt"
	"time"

	coveragedomain "github.com/bimatrack/bimatrack-backend/internal/coverage/domain"
	coveragerepo "github.com/bimatrack/bimatrack-backend/internal/coverage/repository"
	coveragesvc "github.com/bimatrack/bimatrack-backend/internal/coverage/service"
	notificationdomain "github.com/bimatrack/bimatrack-backend/internal/notifications/domain"
	notificationsvc "github.com/bimatrack/bimatrack-backend/internal/notifications/service"
	tenantsrepo "github.com/bimatrack/bimatrack-backend/internal/tenants/repository"
	"github.com/bimatrack/bimatrack-backend/pkg/actor"
	"github.com/bimatrack/bimatrack-backend/pkg/config"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// tenantPageSize bounds one page of the tenant scan.
const tenantPageSize = 100

// reminderRoles receive expiry reminders.
var reminderRoles = []string{actor.RoleAdmin, actor.RoleManager}

// Reconciler sweeps every tenant on a fixed interval.
type Reconciler struct {
	tenants       *tenantsrepo.TenantRepository
	policies      *coveragerepo.PolicyRepository
	permits       *coveragerepo.PermitRepository
	coverage      *coveragesvc.CoverageService
	notifications *notificationsvc.NotificationService
	cfg           config.ReconcilerConfig
	compliance    config.ComplianceConfig
	logger        *logger.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(
	tenants *tenantsrepo.TenantRepository,
	policies *coveragerepo.PolicyRepository,
	permits *coveragerepo.PermitRepository,
	coverage *coveragesvc.CoverageService,
	notifications *notificationsvc.NotificationService,
	cfg config.ReconcilerConfig,
	compliance config.ComplianceConfig,
	log *logger.Logger,
) *Reconciler {
	return &Reconciler{
		tenants:       tenants,
		policies:      policies,
		permits:       permits,
		coverage:      coverage,
		notifications: notifications,
		cfg:           cfg,
		compliance:    compliance,
		logger:        log.WithComponent("reconciler"),
	}
}

// Run sweeps on the configured interval until the context is cancelled.
// One sweep runs immediately on startup.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info().Dur("interval", r.cfg.Interval).Msg("reconciler started")

	r.Sweep(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reconciler stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep processes every active tenant once. A failing tenant is logged and
// skipped; the sweep continues with the rest.
func (r *Reconciler) Sweep(ctx context.Context) {
	ctx = actor.WithActor(ctx, actor.SystemActor())
	now := time.Now().UTC()

	offset := 0
	for {
		tenants, _, err := r.tenants.List(ctx, tenantPageSize, offset)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to list tenants for sweep")
			return
		}
		if len(tenants) == 0 {
			return
		}

		for i := range tenants {
			t := &tenants[i]
			if t.IsSuspended() {
				continue
			}
			if err := r.sweepTenant(tenant.Bind(ctx, t.Active()), now); err != nil {
				r.logger.Error().Err(err).Str("tenant_id", t.ID).Msg("tenant sweep failed")
			}
		}

		if len(tenants) < tenantPageSize {
			return
		}
		offset += tenantPageSize
	}
}

func (r *Reconciler) sweepTenant(ctx context.Context, now time.Time) error {
	active, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}

	if err := r.expirePolicies(ctx, active.ID, now); err != nil {
		return err
	}
	if err := r.expirePermits(ctx, active.ID, now); err != nil {
		return err
	}

	window := active.ExpiryReminderDays(r.compliance.ExpiryReminderDaysDefault)
	if err := r.remindExpiringPolicies(ctx, active.ID, now, window); err != nil {
		return err
	}
	return r.remindExpiringPermits(ctx, active.ID, now, window)
}

// expirePolicies moves every overdue active policy to expired, one
// transaction per record so one bad row never blocks the rest.
func (r *Reconciler) expirePolicies(ctx context.Context, tenantID string, now time.Time) error {
	due, err := r.policies.ListDueForExpiry(ctx, tenantID, now)
	if err != nil {
		return err
	}

	for i := range due {
		p := &due[i]
		if err := r.coverage.ExpirePolicy(ctx, p); err != nil {
			r.logger.Error().Err(err).Str("policy_id", p.ID).Msg("failed to expire policy")
			continue
		}
		r.logger.Info().Str("policy_id", p.ID).Msg("policy expired")
	}
	return nil
}

func (r *Reconciler) expirePermits(ctx context.Context, tenantID string, now time.Time) error {
	due, err := r.permits.ListDueForExpiry(ctx, tenantID, now)
	if err != nil {
		return err
	}

	for i := range due {
		p := &due[i]
		if err := r.coverage.ExpirePermit(ctx, p); err != nil {
			r.logger.Error().Err(err).Str("permit_id", p.ID).Msg("failed to expire permit")
			continue
		}
		r.logger.Info().Str("permit_id", p.ID).Msg("permit expired")
	}
	return nil
}

func (r *Reconciler) remindExpiringPolicies(ctx context.Context, tenantID string, now time.Time, window int) error {
	expiring, err := r.policies.ListExpiringWithin(ctx, tenantID, now, window)
	if err != nil {
		return err
	}

	for i := range expiring {
		p := &expiring[i]
		policyID := p.ID
		vehicleID := p.VehicleID
		endDate := p.EndDate.Format("2006-01-02")

		_, err := r.notifications.Enqueue(ctx, notificationsvc.EnqueueInput{
			TenantID:  tenantID,
			Roles:     reminderRoles,
			Kind:      notificationdomain.KindPolicyExpiring,
			Priority:  notificationdomain.PriorityHigh,
			Title:     "Policy expiring soon",
			Message:   fmt.Sprintf("Policy %s expires on %s", p.PolicyNumber, endDate),
			PolicyID:  &policyID,
			VehicleID: &vehicleID,
			DedupeKey: reminderDedupeKey(coveragedomain.EntityKindPolicy, p.ID, now),
		})
		if err != nil {
			r.logger.Error().Err(err).Str("policy_id", p.ID).Msg("failed to enqueue policy reminder")
		}
	}
	return nil
}

func (r *Reconciler) remindExpiringPermits(ctx context.Context, tenantID string, now time.Time, window int) error {
	expiring, err := r.permits.ListExpiringWithin(ctx, tenantID, now, window)
	if err != nil {
		return err
	}

	for i := range expiring {
		p := &expiring[i]
		permitID := p.ID
		vehicleID := p.VehicleID
		endDate := p.EndDate.Format("2006-01-02")

		_, err := r.notifications.Enqueue(ctx, notificationsvc.EnqueueInput{
			TenantID:  tenantID,
			Roles:     reminderRoles,
			Kind:      notificationdomain.KindPermitExpiring,
			Priority:  notificationdomain.PriorityHigh,
			Title:     "Permit expiring soon",
			Message:   fmt.Sprintf("%s permit %s expires on %s", p.PermitType, p.ReferenceNumber, endDate),
			PermitID:  &permitID,
			VehicleID: &vehicleID,
			DedupeKey: reminderDedupeKey(coveragedomain.EntityKindPermit, p.ID, now),
		})
		if err != nil {
			r.logger.Error().Err(err).Str("permit_id", p.ID).Msg("failed to enqueue permit reminder")
		}
	}
	return nil
}

// reminderDedupeKey ties a reminder to its daily cycle. Re-running the
// sweep on the same day enqueues nothing new.
func reminderDedupeKey(entityKind, entityID string, now time.Time) string {
	return fmt.Sprintf("reminder:%s:%s:%s", entityKind, entityID, now.Format("2006-01-02"))
}
