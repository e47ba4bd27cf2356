package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/bimatrack/bimatrack-backend/internal/identity/domain"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// UserRepository handles user persistence
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, tenant_id, email, password_hash, role, status,
	failed_login_count, locked_until, created_at, updated_at, deleted_at`

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (tenant_id, email, password_hash, role, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowx(ctx, query, u.TenantID, u.Email, u.PasswordHash, u.Role, u.Status).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByEmail returns a user by email. Emails are unique platform-wide, so
// this lookup runs without a tenant predicate; it backs authentication.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND deleted_at IS NULL`

	if err := r.db.Get(ctx, &u, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("user")
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &u, nil
}

// GetByID returns a user by ID without a tenant predicate. Used by
// authentication and platform operations.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`

	if err := r.db.Get(ctx, &u, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("user")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// GetTenantUser returns a user belonging to the bound tenant.
func (r *UserRepository) GetTenantUser(ctx context.Context, id string) (*domain.User, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var u domain.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`

	if err := r.db.Get(ctx, &u, query, id, tenantID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("user")
		}
		return nil, fmt.Errorf("failed to get tenant user: %w", err)
	}
	return &u, nil
}

// ListByTenant returns the bound tenant's users, newest first.
func (r *UserRepository) ListByTenant(ctx context.Context, limit, offset int) ([]domain.User, int64, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM users WHERE tenant_id = $1 AND deleted_at IS NULL`
	if err := r.db.Get(ctx, &total, countQuery, tenantID); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	users := []domain.User{}
	query := `
		SELECT ` + userColumns + ` FROM users
		WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	if err := r.db.Select(ctx, &users, query, tenantID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}

	return users, total, nil
}

// ListByTenantAndRoles returns active users of a tenant holding any of the
// given roles. Backs notification fanout, so it takes an explicit tenant ID
// rather than the bound one; the reconciler iterates tenants it is not
// bound to.
func (r *UserRepository) ListByTenantAndRoles(ctx context.Context, tenantID string, roles []string) ([]domain.User, error) {
	users := []domain.User{}
	query := `
		SELECT ` + userColumns + ` FROM users
		WHERE tenant_id = $1 AND role = ANY($2) AND status = $3 AND deleted_at IS NULL
		ORDER BY created_at ASC`
	if err := r.db.Select(ctx, &users, query, tenantID, pq.Array(roles), domain.StatusActive); err != nil {
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	return users, nil
}

// UpdatePassword replaces a user's password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `
		UPDATE users SET password_hash = $2, failed_login_count = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	res, err := r.db.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("user")
	}
	return nil
}

// SetStatus enables or disables a user
func (r *UserRepository) SetStatus(ctx context.Context, id, status string) error {
	query := `UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	res, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to set user status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("user")
	}
	return nil
}

// RecordFailedLogin increments the failure counter and locks the account
// once it reaches maxFailures. Returns the updated counter.
func (r *UserRepository) RecordFailedLogin(ctx context.Context, id string, maxFailures int, lockFor time.Duration) (int, error) {
	var count int
	query := `
		UPDATE users
		SET failed_login_count = failed_login_count + 1,
		    locked_until = CASE WHEN failed_login_count + 1 >= $2 THEN NOW() + $3::interval ELSE locked_until END,
		    updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING failed_login_count`

	interval := fmt.Sprintf("%d seconds", int(lockFor.Seconds()))
	if err := r.db.QueryRowx(ctx, query, id, maxFailures, interval).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to record failed login: %w", err)
	}
	return count, nil
}

// ResetFailedLogins clears the failure counter after a successful login
func (r *UserRepository) ResetFailedLogins(ctx context.Context, id string) error {
	query := `
		UPDATE users SET failed_login_count = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to reset login failures: %w", err)
	}
	return nil
}
