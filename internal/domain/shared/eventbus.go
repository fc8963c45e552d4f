package shared

import "context"

// EventPublisher publishes domain events.
// Implementations are called only after the producing transaction has committed.
type EventPublisher interface {
	// Publish publishes one or more domain events
	Publish(ctx context.Context, events ...DomainEvent) error
}

// NoOpEventPublisher discards events
type NoOpEventPublisher struct{}

// Publish implements EventPublisher
func (NoOpEventPublisher) Publish(context.Context, ...DomainEvent) error {
	return nil
}
