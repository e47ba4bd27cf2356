// Package domain defines the fleet aggregates: customers, vehicles and the
// ownership timeline linking them. The vehicle is the root every compliance
// record hangs off.
package domain

import "time"

// Entity kinds used in audit and history records.
const (
	EntityKindCustomer  = "customer"
	EntityKindVehicle   = "vehicle"
	EntityKindOwnership = "ownership"
)

// Customer kinds
const (
	CustomerIndividual = "individual"
	CustomerCompany    = "company"
)

// Vehicle statuses
const (
	VehicleActive    = "active"
	VehicleSuspended = "suspended"
	VehicleRetired   = "retired"
)

// Customer is a policy holder or vehicle owner.
type Customer struct {
	ID          string     `db:"id" json:"id"`
	TenantID    string     `db:"tenant_id" json:"tenant_id"`
	Kind        string     `db:"kind" json:"kind"`
	DisplayName string     `db:"display_name" json:"display_name"`
	Email       *string    `db:"email" json:"email,omitempty"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt   *time.Time `db:"deleted_at" json:"-"`
}

// Vehicle is the root aggregate for compliance records.
type Vehicle struct {
	ID                string     `db:"id" json:"id"`
	TenantID          string     `db:"tenant_id" json:"tenant_id"`
	RegistrationPlate string     `db:"registration_plate" json:"registration_plate"`
	ChassisNumber     *string    `db:"chassis_number" json:"chassis_number,omitempty"`
	EngineNumber      *string    `db:"engine_number" json:"engine_number,omitempty"`
	VehicleType       string     `db:"vehicle_type" json:"vehicle_type"`
	UsageCategory     *string    `db:"usage_category" json:"usage_category,omitempty"`
	Status            string     `db:"status" json:"status"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt         *time.Time `db:"deleted_at" json:"-"`
}

// Ownership is one segment of a vehicle's ownership timeline. The open
// segment (To == nil) is the current owner; at most one exists per vehicle.
type Ownership struct {
	ID         string     `db:"id" json:"id"`
	TenantID   string     `db:"tenant_id" json:"tenant_id"`
	VehicleID  string     `db:"vehicle_id" json:"vehicle_id"`
	CustomerID string     `db:"customer_id" json:"customer_id"`
	From       time.Time  `db:"from_ts" json:"from"`
	To         *time.Time `db:"to_ts" json:"to,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt  *time.Time `db:"deleted_at" json:"-"`
}

// IsCurrent reports whether this segment is the open one.
func (o *Ownership) IsCurrent() bool {
	return o.To == nil
}
