// Package service buffers notifications for tenant users. The reconciler
// and lifecycle services enqueue; users read and mark through the API.
package service

import (
	"context"

	identityrepo "github.com/bimatrack/bimatrack-backend/internal/identity/repository"
	"github.com/bimatrack/bimatrack-backend/internal/notifications/domain"
	"github.com/bimatrack/bimatrack-backend/internal/notifications/repository"
	"github.com/bimatrack/bimatrack-backend/pkg/actor"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
	"github.com/bimatrack/bimatrack-backend/pkg/messaging"
)

// EventPublisher publishes notification events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// NotificationService buffers and serves notifications.
type NotificationService struct {
	notifications *repository.NotificationRepository
	users         *identityrepo.UserRepository
	publisher     EventPublisher
	logger        *logger.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(
	notifications *repository.NotificationRepository,
	users *identityrepo.UserRepository,
	publisher EventPublisher,
	log *logger.Logger,
) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		users:         users,
		publisher:     publisher,
		logger:        log.WithComponent("notifications"),
	}
}

// EnqueueInput addresses one notification to every tenant user holding one
// of the listed roles.
type EnqueueInput struct {
	TenantID  string
	Roles     []string
	Kind      string
	Priority  string
	Title     string
	Message   string
	PolicyID  *string
	PermitID  *string
	VehicleID *string
	DedupeKey string
}

// Enqueue fans a notification out to every matching user. Recipients that
// already hold a notification with the same dedupe key are skipped, which
// makes repeated reconciler sweeps idempotent. Returns the number of
// notifications actually inserted.
func (s *NotificationService) Enqueue(ctx context.Context, in EnqueueInput) (int, error) {
	recipients, err := s.users.ListByTenantAndRoles(ctx, in.TenantID, in.Roles)
	if err != nil {
		return 0, err
	}

	priority := in.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}

	inserted := 0
	for _, u := range recipients {
		n := &domain.Notification{
			UserID:    u.ID,
			Kind:      in.Kind,
			Priority:  priority,
			Title:     in.Title,
			Message:   in.Message,
			PolicyID:  in.PolicyID,
			PermitID:  in.PermitID,
			VehicleID: in.VehicleID,
		}
		if in.DedupeKey != "" {
			key := in.DedupeKey
			n.DedupeKey = &key
		}

		ok, err := s.notifications.Insert(ctx, n)
		if err != nil {
			return inserted, err
		}
		if !ok {
			continue
		}
		inserted++
		s.publishEnqueued(ctx, n)
	}

	if inserted > 0 {
		s.logger.Info().
			Str("kind", in.Kind).
			Int("recipients", inserted).
			Msg("notifications enqueued")
	}
	return inserted, nil
}

// ListForActor returns the acting user's notifications.
func (s *NotificationService) ListForActor(ctx context.Context, unreadOnly bool, limit, offset int) ([]domain.Notification, int64, error) {
	act := actor.FromContext(ctx)
	if act == nil {
		return nil, 0, errors.Unauthorized("authentication required")
	}
	return s.notifications.ListForUser(ctx, act.ID, unreadOnly, limit, offset)
}

// MarkRead marks one of the acting user's notifications read.
func (s *NotificationService) MarkRead(ctx context.Context, id string) (*domain.Notification, error) {
	act := actor.FromContext(ctx)
	if act == nil {
		return nil, errors.Unauthorized("authentication required")
	}
	return s.notifications.MarkRead(ctx, id, act.ID)
}

// MarkAllRead marks all of the acting user's notifications read.
func (s *NotificationService) MarkAllRead(ctx context.Context) (int64, error) {
	act := actor.FromContext(ctx)
	if act == nil {
		return 0, errors.Unauthorized("authentication required")
	}
	return s.notifications.MarkAllRead(ctx, act.ID)
}

// UnreadCount returns the acting user's unread notification count.
func (s *NotificationService) UnreadCount(ctx context.Context) (int64, error) {
	act := actor.FromContext(ctx)
	if act == nil {
		return 0, errors.Unauthorized("authentication required")
	}
	return s.notifications.CountUnread(ctx, act.ID)
}

func (s *NotificationService) publishEnqueued(ctx context.Context, n *domain.Notification) {
	entityKind, entityID := "", ""
	switch {
	case n.PolicyID != nil:
		entityKind, entityID = "policy", *n.PolicyID
	case n.PermitID != nil:
		entityKind, entityID = "permit", *n.PermitID
	case n.VehicleID != nil:
		entityKind, entityID = "vehicle", *n.VehicleID
	}

	event := messaging.NotificationEnqueuedEvent{
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		RecipientID:    n.UserID,
		Kind:           n.Kind,
		EntityKind:     entityKind,
		EntityID:       entityID,
		Message:        n.Message,
	}
	if err := s.publisher.Publish(ctx, messaging.EventNotificationEnqueued, event); err != nil {
		s.logger.Warn().Err(err).Str("notification_id", n.ID).Msg("failed to publish notification event")
	}
}
