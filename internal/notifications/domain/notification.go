// Package domain defines in-app notifications delivered to tenant users.
package domain

import "time"

// Notification kinds
const (
	KindPolicyExpiring = "policy_expiring"
	KindPolicyExpired  = "policy_expired"
	KindPermitExpiring = "permit_expiring"
	KindPermitExpired  = "permit_expired"
	KindPaymentPending = "payment_pending"
	KindCancellation   = "cancellation"
)

// Priority levels
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Notification is one message addressed to one user. The dedupe key makes
// repeated reconciler sweeps idempotent: a second enqueue with the same key
// is silently dropped.
type Notification struct {
	ID        string     `db:"id" json:"id"`
	TenantID  string     `db:"tenant_id" json:"tenant_id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Kind      string     `db:"kind" json:"kind"`
	Priority  string     `db:"priority" json:"priority"`
	Title     string     `db:"title" json:"title"`
	Message   string     `db:"message" json:"message"`
	PolicyID  *string    `db:"policy_id" json:"policy_id,omitempty"`
	PermitID  *string    `db:"permit_id" json:"permit_id,omitempty"`
	VehicleID *string    `db:"vehicle_id" json:"vehicle_id,omitempty"`
	DedupeKey *string    `db:"dedupe_key" json:"-"`
	ReadAt    *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// IsRead reports whether the recipient has seen the notification.
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}
