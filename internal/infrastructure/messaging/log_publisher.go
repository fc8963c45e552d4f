package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/yieldvault/backend/internal/domain/shared"
)

// LogPublisher records events in the log instead of a broker. It is used when
// messaging is disabled.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a LogPublisher
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish implements EventPublisher
func (p *LogPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	for _, e := range events {
		p.logger.Info("Domain event",
			zap.String("event_type", e.EventType()),
			zap.String("event_id", e.EventID().String()),
			zap.String("aggregate_type", e.AggregateType()),
			zap.String("aggregate_id", e.AggregateID().String()),
			zap.String("client_id", e.ClientID().String()),
		)
	}
	return nil
}

var _ shared.EventPublisher = (*LogPublisher)(nil)
