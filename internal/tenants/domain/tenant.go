// Package domain defines the tenant aggregate. Tenants are the isolation
// boundary for every business record on the platform.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// Tenant statuses
const (
	StatusActive    = tenant.StatusActive
	StatusSuspended = tenant.StatusSuspended
)

// Settings is the tenant's JSONB configuration blob.
type Settings map[string]any

// Value implements driver.Valuer
func (s Settings) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner
func (s *Settings) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	case nil:
		*s = Settings{}
		return nil
	default:
		return fmt.Errorf("unsupported settings type %T", src)
	}
}

// Tenant is an insurer or fleet operator on the platform.
type Tenant struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Slug      string     `db:"slug" json:"slug"`
	Status    string     `db:"status" json:"status"`
	Settings  Settings   `db:"settings" json:"settings"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// Active converts the tenant to its request-context form.
func (t *Tenant) Active() tenant.ActiveTenant {
	return tenant.ActiveTenant{
		ID:       t.ID,
		Slug:     t.Slug,
		Status:   t.Status,
		Settings: tenant.Settings(t.Settings),
	}
}

// IsSuspended reports whether tenant users are currently locked out.
func (t *Tenant) IsSuspended() bool {
	return t.Status == StatusSuspended
}
