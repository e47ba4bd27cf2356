// Package domain defines the computed compliance view over a vehicle's
// coverage. Compliance is never stored; it is evaluated from the records in
// force on the requested day.
package domain

import "time"

// Compliance statuses
const (
	StatusCompliant    = "compliant"
	StatusAtRisk       = "at_risk"
	StatusNonCompliant = "non_compliant"
)

// PermitStanding reports one required permit type's state for a vehicle.
type PermitStanding struct {
	PermitType string     `json:"permit_type"`
	InForce    bool       `json:"in_force"`
	PermitID   string     `json:"permit_id,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	Expiring   bool       `json:"expiring"`
}

// VehicleStatus is the full compliance evaluation for one vehicle.
type VehicleStatus struct {
	VehicleID      string           `json:"vehicle_id"`
	AsOf           time.Time        `json:"as_of"`
	Status         string           `json:"status"`
	RiskWindowDays int              `json:"risk_window_days"`
	PolicyInForce  bool             `json:"policy_in_force"`
	PolicyID       string           `json:"policy_id,omitempty"`
	PolicyEndDate  *time.Time       `json:"policy_end_date,omitempty"`
	PolicyExpiring bool             `json:"policy_expiring"`
	Permits        []PermitStanding `json:"permits"`
	Reasons        []string         `json:"reasons,omitempty"`
}

// TenantSummary aggregates compliance across a tenant's active fleet.
type TenantSummary struct {
	AsOf           time.Time `json:"as_of"`
	RiskWindowDays int       `json:"risk_window_days"`
	TotalVehicles  int64     `db:"total" json:"total_vehicles"`
	Compliant      int64     `db:"compliant" json:"compliant"`
	AtRisk         int64     `db:"at_risk" json:"at_risk"`
	NonCompliant   int64     `db:"non_compliant" json:"non_compliant"`
}
