// Package domain defines tenant-configurable typed fields. A definition
// declares the field once per entity kind; values attach a typed payload to
// individual entities.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Entity kinds that accept dynamic fields.
const (
	EntityKindCustomer = "customer"
	EntityKindVehicle  = "vehicle"
	EntityKindPolicy   = "policy"
)

// Data types a definition may declare.
const (
	TypeText    = "text"
	TypeNumber  = "number"
	TypeDate    = "date"
	TypeBoolean = "boolean"
	TypeChoice  = "choice"
)

// MaxTextLength caps free-text values.
const MaxTextLength = 1024

var entityKinds = map[string]bool{
	EntityKindCustomer: true,
	EntityKindVehicle:  true,
	EntityKindPolicy:   true,
}

var dataTypes = map[string]bool{
	TypeText:    true,
	TypeNumber:  true,
	TypeDate:    true,
	TypeBoolean: true,
	TypeChoice:  true,
}

// ValidEntityKind reports whether fields may attach to the entity kind.
func ValidEntityKind(kind string) bool { return entityKinds[kind] }

// ValidDataType reports whether the data type is recognized.
func ValidDataType(dt string) bool { return dataTypes[dt] }

// Choices is the allowed value set for a choice field, stored as JSONB.
type Choices []string

// Value implements driver.Valuer
func (c Choices) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner
func (c *Choices) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	case nil:
		*c = nil
		return nil
	}
	return fmt.Errorf("cannot scan %T into Choices", src)
}

// Contains reports whether the choice is in the allowed set.
func (c Choices) Contains(choice string) bool {
	for _, v := range c {
		if v == choice {
			return true
		}
	}
	return false
}

// Definition declares one dynamic field for an entity kind.
type Definition struct {
	ID         string     `db:"id" json:"id"`
	TenantID   string     `db:"tenant_id" json:"tenant_id"`
	EntityKind string     `db:"entity_kind" json:"entity_kind"`
	Name       string     `db:"name" json:"name"`
	Key        string     `db:"key" json:"key"`
	DataType   string     `db:"data_type" json:"data_type"`
	Choices    Choices    `db:"choices" json:"choices,omitempty"`
	Required   bool       `db:"required" json:"required"`
	SortOrder  int        `db:"sort_order" json:"sort_order"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt  *time.Time `db:"deleted_at" json:"-"`
}

// Value holds one typed value for one entity. Exactly one value column is
// populated, matching the definition's data type.
type Value struct {
	ID           string              `db:"id" json:"id"`
	TenantID     string              `db:"tenant_id" json:"tenant_id"`
	DefinitionID string              `db:"definition_id" json:"definition_id"`
	EntityKind   string              `db:"entity_kind" json:"entity_kind"`
	EntityID     string              `db:"entity_id" json:"entity_id"`
	ValueText    *string             `db:"value_text" json:"value_text,omitempty"`
	ValueNumber  decimal.NullDecimal `db:"value_number" json:"value_number,omitempty"`
	ValueDate    *time.Time          `db:"value_date" json:"value_date,omitempty"`
	ValueBool    *bool               `db:"value_bool" json:"value_bool,omitempty"`
	ValueChoice  *string             `db:"value_choice" json:"value_choice,omitempty"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time          `db:"deleted_at" json:"-"`
}

// IsEmpty reports whether no value column is set.
func (v *Value) IsEmpty() bool {
	return v.ValueText == nil && !v.ValueNumber.Valid && v.ValueDate == nil &&
		v.ValueBool == nil && v.ValueChoice == nil
}
