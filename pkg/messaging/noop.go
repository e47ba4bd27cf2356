package messaging

import "context"

// NoopPublisher discards events. Used when the broker is unavailable or in
// tests.
type NoopPublisher struct{}

// Publish implements the publisher contract and does nothing.
func (NoopPublisher) Publish(ctx context.Context, eventType string, data interface{}) error {
	return nil
}
