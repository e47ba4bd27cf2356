package service

import (
	"context"

	auditsvc "github.com/bimatrack/bimatrack-backend/internal/audit/service"
	"github.com/bimatrack/bimatrack-backend/internal/identity/domain"
	"github.com/bimatrack/bimatrack-backend/internal/identity/repository"
	"github.com/bimatrack/bimatrack-backend/pkg/actor"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
	"github.com/bimatrack/bimatrack-backend/pkg/session"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// UserService manages user accounts. Tenant admins manage users inside
// their own tenant; super admins provision tenant admins and other
// platform operators.
type UserService struct {
	users     *repository.UserRepository
	sessions  *session.Store
	authority *Authority
	db        *database.DB
	recorder  *auditsvc.Recorder
	logger    *logger.Logger
}

// NewUserService creates a new user service
func NewUserService(
	users *repository.UserRepository,
	sessions *session.Store,
	authority *Authority,
	db *database.DB,
	recorder *auditsvc.Recorder,
	log *logger.Logger,
) *UserService {
	return &UserService{
		users:     users,
		sessions:  sessions,
		authority: authority,
		db:        db,
		recorder:  recorder,
		logger:    log.WithComponent("users"),
	}
}

// CreateInput is the input for creating a user
type CreateInput struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=10"`
	Role     string  `json:"role" validate:"required"`
	TenantID *string `json:"tenant_id,omitempty" validate:"omitempty,uuid"`
}

// Create provisions a new user account
func (s *UserService) Create(ctx context.Context, in CreateInput) (*domain.User, error) {
	act := actor.FromContext(ctx)
	if act == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	if !domain.ValidRole(in.Role) {
		return nil, errors.Validation(map[string]string{"role": "unknown role"})
	}

	var tenantID *string
	switch {
	case act.IsSuperAdmin():
		// Platform provisioning. Super admins carry no tenant; everyone
		// else needs one named explicitly.
		if in.Role == actor.RoleSuperAdmin {
			if in.TenantID != nil {
				return nil, errors.Validation(map[string]string{"tenant_id": "super admins must not belong to a tenant"})
			}
		} else {
			if in.TenantID == nil {
				return nil, errors.Validation(map[string]string{"tenant_id": "required for tenant roles"})
			}
			tenantID = in.TenantID
		}
	default:
		if err := s.authority.Authorize(ctx, OpUserManage, EntityKindUser, ""); err != nil {
			return nil, err
		}
		if in.Role == actor.RoleSuperAdmin {
			return nil, errors.Forbidden("tenant admins cannot create super admins")
		}
		bound, err := tenant.IDFromContext(ctx)
		if err != nil {
			return nil, err
		}
		if in.TenantID != nil && *in.TenantID != bound {
			return nil, errors.Forbidden("cannot create users outside your tenant")
		}
		tenantID = &bound
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		TenantID:     tenantID,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		Status:       domain.StatusActive,
	}

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		return s.recorder.Record(ctx, EntityKindUser, user.ID, "create", nil, user)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", user.ID).Str("role", user.Role).Msg("user created")
	return user, nil
}

// List returns the bound tenant's users
func (s *UserService) List(ctx context.Context, limit, offset int) ([]domain.User, int64, error) {
	if err := s.authority.Authorize(ctx, OpUserManage, EntityKindUser, ""); err != nil {
		return nil, 0, err
	}
	return s.users.ListByTenant(ctx, limit, offset)
}

// Get returns a user in the bound tenant
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	if err := s.authority.Authorize(ctx, OpUserManage, EntityKindUser, id); err != nil {
		return nil, err
	}
	return s.users.GetTenantUser(ctx, id)
}

// ResetPassword sets a new password and revokes every session of the user.
func (s *UserService) ResetPassword(ctx context.Context, id, newPassword string) error {
	target, err := s.resolveManagedUser(ctx, id, OpPasswordReset)
	if err != nil {
		return err
	}

	if len(newPassword) < 10 {
		return errors.Validation(map[string]string{"password": "must be at least 10 characters"})
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.users.UpdatePassword(ctx, target.ID, hash); err != nil {
			return err
		}
		return s.recorder.Record(ctx, EntityKindUser, target.ID, "update", nil, map[string]string{"password": "reset"})
	})
	if err != nil {
		return err
	}

	if err := s.sessions.RevokeAllForUser(ctx, target.ID); err != nil {
		s.logger.Error().Err(err).Str("user_id", target.ID).Msg("failed to revoke sessions after password reset")
	}

	s.logger.Info().Str("user_id", target.ID).Msg("password reset")
	return nil
}

// SetStatus enables or disables a user. Disabling also revokes sessions.
func (s *UserService) SetStatus(ctx context.Context, id, status string) error {
	if status != domain.StatusActive && status != domain.StatusDisabled {
		return errors.Validation(map[string]string{"status": "must be active or disabled"})
	}

	target, err := s.resolveManagedUser(ctx, id, OpUserManage)
	if err != nil {
		return err
	}

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.users.SetStatus(ctx, target.ID, status); err != nil {
			return err
		}
		after := *target
		after.Status = status
		return s.recorder.Record(ctx, EntityKindUser, target.ID, "update", target, &after)
	})
	if err != nil {
		return err
	}

	if status == domain.StatusDisabled {
		if err := s.sessions.RevokeAllForUser(ctx, target.ID); err != nil {
			s.logger.Error().Err(err).Str("user_id", target.ID).Msg("failed to revoke sessions after disable")
		}
	}

	return nil
}

// resolveManagedUser loads the target and checks the caller may manage it.
// Super admins may manage any non-super-admin account without a bound
// tenant; tenant admins only reach manager and agent accounts of their own
// tenant. Admin accounts, their own included, are managed by the platform.
func (s *UserService) resolveManagedUser(ctx context.Context, id, op string) (*domain.User, error) {
	act := actor.FromContext(ctx)
	if act == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	if act.IsSuperAdmin() {
		target, err := s.users.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if target.IsSuperAdmin() && target.ID != act.ID {
			return nil, errors.Forbidden("super admins cannot manage each other")
		}
		return target, nil
	}

	if err := s.authority.Authorize(ctx, op, EntityKindUser, id); err != nil {
		return nil, err
	}
	target, err := s.users.GetTenantUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if target.Role == actor.RoleAdmin && target.ID != act.ID {
		return nil, errors.Forbidden("tenant admin accounts are managed by the platform")
	}
	return target, nil
}
