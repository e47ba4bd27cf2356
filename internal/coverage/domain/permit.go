package domain

import "time"

// Well-known permit types. The set is open; tenants may require others via
// settings.
const (
	PermitLATRALicense      = "latra_license"
	PermitRoadworthiness    = "roadworthiness"
	PermitPassengerCarriage = "passenger_carriage"
	PermitGoodsCarriage     = "goods_carriage"
)

// Permit cancellation reasons
const (
	PermitCancelCustomerRequest = "customer_request"
	PermitCancelVehicleSold     = "vehicle_sold"
	PermitCancelDuplicate       = "duplicate"
	PermitCancelDataError       = "data_error"
	PermitCancelExpiredEarly    = "expired_early"
	PermitCancelOther           = "other"
)

var permitCancellationReasons = map[string]bool{
	PermitCancelCustomerRequest: true,
	PermitCancelVehicleSold:     true,
	PermitCancelDuplicate:       true,
	PermitCancelDataError:       true,
	PermitCancelExpiredEarly:    true,
	PermitCancelOther:           true,
}

// permitTransitions is the full transition table for permits. Permits carry
// no payment obligation, so they activate straight from draft.
var permitTransitions = map[string][]string{
	StatusDraft:     {StatusActive, StatusCancelled},
	StatusActive:    {StatusCancelled, StatusExpired},
	StatusCancelled: {},
	StatusExpired:   {},
}

// Permit is a regulator-issued operating document for one vehicle.
type Permit struct {
	ID                 string     `db:"id" json:"id"`
	TenantID           string     `db:"tenant_id" json:"tenant_id"`
	VehicleID          string     `db:"vehicle_id" json:"vehicle_id"`
	PermitType         string     `db:"permit_type" json:"permit_type"`
	ReferenceNumber    string     `db:"reference_number" json:"reference_number"`
	IssuingAuthority   string     `db:"issuing_authority" json:"issuing_authority"`
	StartDate          time.Time  `db:"start_date" json:"start_date"`
	EndDate            time.Time  `db:"end_date" json:"end_date"`
	Status             string     `db:"status" json:"status"`
	ActivatedAt        *time.Time `db:"activated_at" json:"activated_at,omitempty"`
	CancelledAt        *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelledBy        *string    `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancellationReason string     `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancellationNote   string     `db:"cancellation_note" json:"cancellation_note,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt          *time.Time `db:"deleted_at" json:"-"`
}

// IsImmutable reports whether field edits are barred.
func (p *Permit) IsImmutable() bool {
	return p.Status != StatusDraft
}

// CanTransition reports whether the permit may move to the target status.
func (p *Permit) CanTransition(to string) bool {
	for _, allowed := range permitTransitions[p.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsInForceOn reports whether the permit was valid on the given day. The
// window runs from activation through the end date inclusive and stops on
// the day of cancellation, so past days answer consistently after the
// record has since expired or been cancelled.
func (p *Permit) IsInForceOn(day time.Time) bool {
	if p.ActivatedAt == nil {
		return false
	}
	d := DateOnly(day)
	if d.Before(DateOnly(p.StartDate)) || d.After(DateOnly(p.EndDate)) {
		return false
	}
	return p.CancelledAt == nil || d.Before(DateOnly(*p.CancelledAt))
}

// ExpiresWithin reports whether an in-force permit's end date falls inside
// the window [day, day+days].
func (p *Permit) ExpiresWithin(day time.Time, days int) bool {
	if !p.IsInForceOn(day) {
		return false
	}
	end := DateOnly(p.EndDate)
	return !end.After(DateOnly(day).AddDate(0, 0, days))
}

// ValidPermitCancellationReason reports whether a reason is in the permit
// reason set.
func ValidPermitCancellationReason(reason string) bool {
	return permitCancellationReasons[reason]
}
