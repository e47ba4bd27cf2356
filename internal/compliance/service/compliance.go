// Package service evaluates vehicle compliance from the records in force.
package service

import (
	"context"
	"time"

	"github.com/bimatrack/bimatrack-backend/internal/compliance/domain"
	"github.com/bimatrack/bimatrack-backend/internal/compliance/repository"
	coveragerepo "github.com/bimatrack/bimatrack-backend/internal/coverage/repository"
	fleetrepo "github.com/bimatrack/bimatrack-backend/internal/fleet/repository"
	identitysvc "github.com/bimatrack/bimatrack-backend/internal/identity/service"
	"github.com/bimatrack/bimatrack-backend/pkg/config"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// ComplianceService computes compliance views. It stores nothing; every
// answer is derived from the policies and permits in force.
type ComplianceService struct {
	policies  *coveragerepo.PolicyRepository
	permits   *coveragerepo.PermitRepository
	vehicles  *fleetrepo.VehicleRepository
	summaries *repository.SummaryRepository
	authority *identitysvc.Authority
	cfg       config.ComplianceConfig
	logger    *logger.Logger
}

// NewComplianceService creates a new compliance service
func NewComplianceService(
	policies *coveragerepo.PolicyRepository,
	permits *coveragerepo.PermitRepository,
	vehicles *fleetrepo.VehicleRepository,
	summaries *repository.SummaryRepository,
	authority *identitysvc.Authority,
	cfg config.ComplianceConfig,
	log *logger.Logger,
) *ComplianceService {
	return &ComplianceService{
		policies:  policies,
		permits:   permits,
		vehicles:  vehicles,
		summaries: summaries,
		authority: authority,
		cfg:       cfg,
		logger:    log.WithComponent("compliance"),
	}
}

// VehicleStatus evaluates one vehicle's compliance on the given day.
func (s *ComplianceService) VehicleStatus(ctx context.Context, vehicleID string, asOf time.Time) (*domain.VehicleStatus, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpBusinessRead, "vehicle", vehicleID); err != nil {
		return nil, err
	}

	active, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := s.vehicles.GetByID(ctx, vehicleID); err != nil {
		return nil, err
	}

	window := active.ExpiryReminderDays(s.cfg.ExpiryReminderDaysDefault)
	required := active.RequiredPermitTypes()

	status := &domain.VehicleStatus{
		VehicleID:      vehicleID,
		AsOf:           asOf,
		RiskWindowDays: window,
	}

	policies, err := s.policies.ListInForceForVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	for i := range policies {
		p := &policies[i]
		if !p.IsInForceOn(asOf) {
			continue
		}
		status.PolicyInForce = true
		status.PolicyID = p.ID
		end := p.EndDate
		status.PolicyEndDate = &end
		status.PolicyExpiring = p.ExpiresWithin(asOf, window)
		break
	}

	permits, err := s.permits.ListInForceForVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	atRisk := status.PolicyInForce && status.PolicyExpiring
	missing := !status.PolicyInForce
	if missing {
		status.Reasons = append(status.Reasons, "no insurance policy in force")
	}

	for _, permitType := range required {
		standing := domain.PermitStanding{PermitType: permitType}
		for i := range permits {
			p := &permits[i]
			if p.PermitType != permitType || !p.IsInForceOn(asOf) {
				continue
			}
			standing.InForce = true
			standing.PermitID = p.ID
			end := p.EndDate
			standing.EndDate = &end
			standing.Expiring = p.ExpiresWithin(asOf, window)
			break
		}
		if !standing.InForce {
			missing = true
			status.Reasons = append(status.Reasons, "no "+permitType+" permit in force")
		} else if standing.Expiring {
			atRisk = true
		}
		status.Permits = append(status.Permits, standing)
	}

	switch {
	case missing:
		status.Status = domain.StatusNonCompliant
	case atRisk:
		status.Status = domain.StatusAtRisk
	default:
		status.Status = domain.StatusCompliant
	}
	return status, nil
}

// TenantSummary aggregates compliance across the tenant's active fleet.
func (s *ComplianceService) TenantSummary(ctx context.Context, asOf time.Time) (*domain.TenantSummary, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpReportsView, "vehicle", ""); err != nil {
		return nil, err
	}

	active, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	window := active.ExpiryReminderDays(s.cfg.ExpiryReminderDaysDefault)
	return s.summaries.TenantSummary(ctx, asOf, active.RequiredPermitTypes(), window)
}
