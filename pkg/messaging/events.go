package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Record lifecycle events
	EventPolicyActivated = "policy.activated"
	EventPolicyCancelled = "policy.cancelled"
	EventPolicyExpired   = "policy.expired"
	EventPolicyRenewed   = "policy.renewed"
	EventPermitActivated = "permit.activated"
	EventPermitCancelled = "permit.cancelled"
	EventPermitExpired   = "permit.expired"

	// Fleet events
	EventOwnershipTransferred = "vehicle.ownership.transferred"

	// Notification events
	EventNotificationEnqueued = "notification.enqueued"
)

// Exchange names
const (
	ExchangeComplianceEvents   = "compliance.events"
	ExchangeNotificationEvents = "notification.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// RecordTransitionedEvent is published when a policy or permit changes state.
type RecordTransitionedEvent struct {
	TenantID   string    `json:"tenant_id"`
	RecordKind string    `json:"record_kind"`
	RecordID   string    `json:"record_id"`
	VehicleID  string    `json:"vehicle_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ActorID    string    `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// OwnershipTransferredEvent is published when a vehicle changes owner.
type OwnershipTransferredEvent struct {
	TenantID      string    `json:"tenant_id"`
	VehicleID     string    `json:"vehicle_id"`
	FromOwnerID   string    `json:"from_owner_id,omitempty"`
	ToOwnerID     string    `json:"to_owner_id"`
	TransferredAt time.Time `json:"transferred_at"`
}

// NotificationEnqueuedEvent mirrors a buffered notification for downstream
// delivery channels.
type NotificationEnqueuedEvent struct {
	NotificationID string `json:"notification_id"`
	TenantID       string `json:"tenant_id"`
	RecipientID    string `json:"recipient_id"`
	Kind           string `json:"kind"`
	EntityKind     string `json:"entity_kind"`
	EntityID       string `json:"entity_id"`
	Message        string `json:"message"`
}
