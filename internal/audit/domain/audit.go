// Package domain defines the audit trail and history snapshot records.
// Both tables are append-only; correcting a mistake means writing a new
// entry, never rewriting an old one.
package domain

import (
	"encoding/json"
	"time"
)

// Audit actions
const (
	ActionCreate        = "create"
	ActionUpdate        = "update"
	ActionSoftDelete    = "soft_delete"
	ActionTransition    = "transition"
	ActionSecurityEvent = "security_event"
)

// Audit outcomes. Rejected guard checks are recorded too, so the trail
// shows attempts, not just successes.
const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
)

// Entry is a single audit record.
type Entry struct {
	ID         string          `db:"id" json:"id"`
	TenantID   *string         `db:"tenant_id" json:"tenant_id,omitempty"`
	ActorID    string          `db:"actor_id" json:"actor_id"`
	At         time.Time       `db:"at_ts" json:"at"`
	EntityKind string          `db:"entity_kind" json:"entity_kind"`
	EntityID   string          `db:"entity_id" json:"entity_id"`
	Action     string          `db:"action" json:"action"`
	Outcome    string          `db:"outcome" json:"outcome"`
	Before     json.RawMessage `db:"before" json:"before,omitempty"`
	After      json.RawMessage `db:"after" json:"after,omitempty"`
	Reason     string          `db:"reason" json:"reason,omitempty"`
}

// HistoryRecord is a full point-in-time snapshot of an entity. Versions are
// dense per entity, starting at 1.
type HistoryRecord struct {
	ID         string          `db:"id" json:"id"`
	TenantID   string          `db:"tenant_id" json:"tenant_id"`
	EntityKind string          `db:"entity_kind" json:"entity_kind"`
	EntityID   string          `db:"entity_id" json:"entity_id"`
	Version    int             `db:"version" json:"version"`
	Snapshot   json.RawMessage `db:"snapshot" json:"snapshot"`
	RecordedAt time.Time       `db:"recorded_at" json:"recorded_at"`
}
