// Package domain defines platform users. A super admin operates the
// platform and belongs to no tenant; admins, managers and agents always
// belong to exactly one tenant.
package domain

import (
	"time"

	"github.com/bimatrack/bimatrack-backend/pkg/actor"
)

// User statuses
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// User is an account that can authenticate against the platform.
type User struct {
	ID               string     `db:"id" json:"id"`
	TenantID         *string    `db:"tenant_id" json:"tenant_id,omitempty"`
	Email            string     `db:"email" json:"email"`
	PasswordHash     string     `db:"password_hash" json:"-"`
	Role             string     `db:"role" json:"role"`
	Status           string     `db:"status" json:"status"`
	FailedLoginCount int        `db:"failed_login_count" json:"-"`
	LockedUntil      *time.Time `db:"locked_until" json:"-"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt        *time.Time `db:"deleted_at" json:"-"`
}

// IsLocked reports whether the account is locked out at the given time.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// IsSuperAdmin reports whether the user is a platform operator.
func (u *User) IsSuperAdmin() bool {
	return u.Role == actor.RoleSuperAdmin
}

// ValidRole reports whether the role is one a user may hold.
func ValidRole(role string) bool {
	switch role {
	case actor.RoleSuperAdmin, actor.RoleAdmin, actor.RoleManager, actor.RoleAgent:
		return true
	}
	return false
}

// Actor converts the user to its request-context identity.
func (u *User) Actor() *actor.Actor {
	a := &actor.Actor{
		ID:    u.ID,
		Email: u.Email,
		Role:  u.Role,
	}
	if u.TenantID != nil {
		a.TenantID = *u.TenantID
	}
	return a
}
