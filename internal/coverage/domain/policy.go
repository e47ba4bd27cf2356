// Package domain defines insurance policies, regulator permits and their
// lifecycle rules. Records move draft -> active -> cancelled/expired and
// become immutable the moment they leave draft states; corrections happen
// by cancelling and issuing a replacement.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Entity kinds used in audit and history records.
const (
	EntityKindPolicy  = "policy"
	EntityKindPermit  = "permit"
	EntityKindPayment = "payment"
)

// Record statuses. pending_payment applies to policies only.
const (
	StatusDraft          = "draft"
	StatusPendingPayment = "pending_payment"
	StatusActive         = "active"
	StatusCancelled      = "cancelled"
	StatusExpired        = "expired"
)

// Policy cancellation reasons
const (
	PolicyCancelCustomerRequest = "customer_request"
	PolicyCancelNonPayment      = "non_payment"
	PolicyCancelVehicleSold     = "vehicle_sold"
	PolicyCancelDuplicate       = "duplicate"
	PolicyCancelDataError       = "data_error"
	PolicyCancelOther           = "other"
)

var policyCancellationReasons = map[string]bool{
	PolicyCancelCustomerRequest: true,
	PolicyCancelNonPayment:      true,
	PolicyCancelVehicleSold:     true,
	PolicyCancelDuplicate:       true,
	PolicyCancelDataError:       true,
	PolicyCancelOther:           true,
}

// policyTransitions is the full transition table for policies.
var policyTransitions = map[string][]string{
	StatusDraft:          {StatusPendingPayment, StatusCancelled},
	StatusPendingPayment: {StatusActive, StatusCancelled},
	StatusActive:         {StatusCancelled, StatusExpired},
	StatusCancelled:      {},
	StatusExpired:        {},
}

// Policy is a motor insurance policy attached to one vehicle.
type Policy struct {
	ID                 string              `db:"id" json:"id"`
	TenantID           string              `db:"tenant_id" json:"tenant_id"`
	VehicleID          string              `db:"vehicle_id" json:"vehicle_id"`
	PolicyNumber       string              `db:"policy_number" json:"policy_number"`
	StartDate          time.Time           `db:"start_date" json:"start_date"`
	EndDate            time.Time           `db:"end_date" json:"end_date"`
	PremiumAmount      decimal.Decimal     `db:"premium_amount" json:"premium_amount"`
	CoverageAmount     decimal.NullDecimal `db:"coverage_amount" json:"coverage_amount,omitempty"`
	PolicyType         string              `db:"policy_type" json:"policy_type"`
	Notes              string              `db:"notes" json:"notes"`
	Status             string              `db:"status" json:"status"`
	ActivatedAt        *time.Time          `db:"activated_at" json:"activated_at,omitempty"`
	CancelledAt        *time.Time          `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelledBy        *string             `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancellationReason string              `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancellationNote   string              `db:"cancellation_note" json:"cancellation_note,omitempty"`
	RenewedFrom        *string             `db:"renewed_from" json:"renewed_from,omitempty"`
	CreatedAt          time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at" json:"updated_at"`
	DeletedAt          *time.Time          `db:"deleted_at" json:"-"`
}

// IsImmutable reports whether field edits are barred. Activation is the
// point of no return.
func (p *Policy) IsImmutable() bool {
	switch p.Status {
	case StatusActive, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether the policy may move to the target status.
func (p *Policy) CanTransition(to string) bool {
	for _, allowed := range policyTransitions[p.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsInForceOn reports whether the policy provided cover on the given day.
// Cover runs from activation through the end date inclusive and stops on
// the day of cancellation, so past days answer consistently after the
// record has since expired or been cancelled. A record that never
// activated is never in force, and an active record whose start date is
// still in the future is not yet in force even though it occupies the
// vehicle's single active slot.
func (p *Policy) IsInForceOn(day time.Time) bool {
	if p.ActivatedAt == nil {
		return false
	}
	d := DateOnly(day)
	if d.Before(DateOnly(p.StartDate)) || d.After(DateOnly(p.EndDate)) {
		return false
	}
	return p.CancelledAt == nil || d.Before(DateOnly(*p.CancelledAt))
}

// ExpiresWithin reports whether an in-force policy's end date falls inside
// the window [day, day+days].
func (p *Policy) ExpiresWithin(day time.Time, days int) bool {
	if !p.IsInForceOn(day) {
		return false
	}
	end := DateOnly(p.EndDate)
	return !end.After(DateOnly(day).AddDate(0, 0, days))
}

// ValidPolicyCancellationReason reports whether a reason is in the policy
// reason set.
func ValidPolicyCancellationReason(reason string) bool {
	return policyCancellationReasons[reason]
}

// PolicyNumber formats the canonical policy number for a tenant and year.
func FormatPolicyNumber(year int, tenantSlug string, seq int) string {
	return fmt.Sprintf("POL-%d-%s-%05d", year, normalizeSlug(tenantSlug), seq)
}

// DateOnly truncates a timestamp to its UTC calendar day.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func normalizeSlug(slug string) string {
	out := make([]byte, 0, len(slug))
	for i := 0; i < len(slug); i++ {
		c := slug[i]
		switch {
		case c >= 'a' && c <= 'z':
			out = append(out, c-'a'+'A')
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out = append(out, c)
		}
	}
	return string(out)
}
