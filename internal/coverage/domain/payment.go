package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is money received against a policy's premium. Only verified
// payments count towards the activation guard.
type Payment struct {
	ID         string          `db:"id" json:"id"`
	TenantID   string          `db:"tenant_id" json:"tenant_id"`
	PolicyID   string          `db:"policy_id" json:"policy_id"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	ReceivedAt time.Time       `db:"received_at" json:"received_at"`
	VerifiedAt *time.Time      `db:"verified_at" json:"verified_at,omitempty"`
	VerifiedBy *string         `db:"verified_by" json:"verified_by,omitempty"`
	Reference  string          `db:"reference" json:"reference"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
	DeletedAt  *time.Time      `db:"deleted_at" json:"-"`
}

// IsVerified reports whether the payment counts towards activation.
func (p *Payment) IsVerified() bool {
	return p.VerifiedAt != nil
}
