package service

import (
	"context"
	"regexp"

	auditsvc "github.com/bimatrack/bimatrack-backend/internal/audit/service"
	"github.com/bimatrack/bimatrack-backend/internal/tenants/domain"
	"github.com/bimatrack/bimatrack-backend/internal/tenants/repository"
	"github.com/bimatrack/bimatrack-backend/pkg/actor"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// EntityKindTenant is the audit entity kind for tenants.
const EntityKindTenant = "tenant"

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// TenantService manages tenant provisioning and settings. Every mutation
// here is a platform operation restricted to super admins.
type TenantService struct {
	repo     *repository.TenantRepository
	db       *database.DB
	recorder *auditsvc.Recorder
	logger   *logger.Logger
}

// NewTenantService creates a new tenant service
func NewTenantService(repo *repository.TenantRepository, db *database.DB, recorder *auditsvc.Recorder, log *logger.Logger) *TenantService {
	return &TenantService{
		repo:     repo,
		db:       db,
		recorder: recorder,
		logger:   log.WithComponent("tenants"),
	}
}

// CreateInput is the input for creating a tenant
type CreateInput struct {
	Name     string          `json:"name" validate:"required,min=2,max=200"`
	Slug     string          `json:"slug" validate:"required,min=2,max=64"`
	Settings domain.Settings `json:"settings,omitempty"`
}

// Create provisions a new tenant
func (s *TenantService) Create(ctx context.Context, in CreateInput) (*domain.Tenant, error) {
	if err := s.requireSuperAdmin(ctx); err != nil {
		return nil, err
	}

	if !slugPattern.MatchString(in.Slug) {
		return nil, errors.Validation(map[string]string{
			"slug": "must be lowercase letters, digits and hyphens",
		})
	}

	settings := in.Settings
	if settings == nil {
		settings = domain.Settings{}
	}
	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	t := &domain.Tenant{
		Name:     in.Name,
		Slug:     in.Slug,
		Status:   domain.StatusActive,
		Settings: settings,
	}

	err := s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, t); err != nil {
			return err
		}
		return s.recorder.Record(ctx, EntityKindTenant, t.ID, "create", nil, t)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("tenant_id", t.ID).Str("slug", t.Slug).Msg("tenant created")
	return t, nil
}

// Get returns a tenant by ID
func (s *TenantService) Get(ctx context.Context, id string) (*domain.Tenant, error) {
	if err := s.requireSuperAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// List returns all tenants
func (s *TenantService) List(ctx context.Context, limit, offset int) ([]domain.Tenant, int64, error) {
	if err := s.requireSuperAdmin(ctx); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, limit, offset)
}

// Suspend suspends a tenant. Users of a suspended tenant cannot bind it and
// are locked out until it is reinstated.
func (s *TenantService) Suspend(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, domain.StatusSuspended)
}

// Reinstate reactivates a suspended tenant.
func (s *TenantService) Reinstate(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, domain.StatusActive)
}

func (s *TenantService) setStatus(ctx context.Context, id, status string) error {
	if err := s.requireSuperAdmin(ctx); err != nil {
		return err
	}

	before, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if before.Status == status {
		return nil
	}

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.repo.SetStatus(ctx, id, status); err != nil {
			return err
		}
		after := *before
		after.Status = status
		return s.recorder.Record(ctx, EntityKindTenant, id, "update", before, &after)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("tenant_id", id).Str("status", status).Msg("tenant status changed")
	return nil
}

// UpdateSettings replaces a tenant's settings. Settings are validated
// against the known typed keys; unknown keys are kept as-is for forward
// compatibility.
func (s *TenantService) UpdateSettings(ctx context.Context, id string, settings domain.Settings) (*domain.Tenant, error) {
	if err := s.requireSuperAdmin(ctx); err != nil {
		return nil, err
	}

	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	before, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.repo.UpdateSettings(ctx, id, settings); err != nil {
			return err
		}
		after := *before
		after.Settings = settings
		return s.recorder.Record(ctx, EntityKindTenant, id, "update", before, &after)
	})
	if err != nil {
		return nil, err
	}

	return s.repo.GetByID(ctx, id)
}

// ResolveActive loads a tenant for request binding. Suspended or missing
// tenants cannot be bound.
func (s *TenantService) ResolveActive(ctx context.Context, id string) (tenant.ActiveTenant, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return tenant.ActiveTenant{}, err
	}
	if t.IsSuspended() {
		return tenant.ActiveTenant{}, errors.Forbidden("tenant is suspended")
	}
	return t.Active(), nil
}

func (s *TenantService) requireSuperAdmin(ctx context.Context) error {
	act := actor.FromContext(ctx)
	if act == nil {
		return errors.Unauthorized("authentication required")
	}
	if !act.IsSuperAdmin() {
		return errors.Forbidden("tenant management requires super admin")
	}
	return nil
}

func validateSettings(settings domain.Settings) error {
	details := map[string]string{}

	if v, ok := settings[tenant.SettingExpiryReminderDays]; ok {
		if !isPositiveInt(v) {
			details[tenant.SettingExpiryReminderDays] = "must be a positive integer"
		}
	}
	if v, ok := settings[tenant.SettingRenewalBoundaryDays]; ok {
		if !isNonNegativeInt(v) {
			details[tenant.SettingRenewalBoundaryDays] = "must be a non-negative integer"
		}
	}
	if v, ok := settings[tenant.SettingFleetPoliciesEnabled]; ok {
		if _, isBool := v.(bool); !isBool {
			details[tenant.SettingFleetPoliciesEnabled] = "must be a boolean"
		}
	}
	if v, ok := settings[tenant.SettingRequiredPermitTypes]; ok {
		if !isStringList(v) {
			details[tenant.SettingRequiredPermitTypes] = "must be a list of permit types"
		}
	}

	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

func isPositiveInt(v any) bool {
	n, ok := asInt(v)
	return ok && n > 0
}

func isNonNegativeInt(v any) bool {
	n, ok := asInt(v)
	return ok && n >= 0
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func isStringList(v any) bool {
	switch vs := v.(type) {
	case []string:
		return true
	case []any:
		for _, item := range vs {
			if _, ok := item.(string); !ok {
				return false
			}
		}
		return true
	}
	return false
}
