package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/yieldvault/backend/internal/domain/shared"
	"github.com/yieldvault/backend/internal/infrastructure/config"
	"github.com/yieldvault/backend/internal/infrastructure/telemetry"
)

// ErrPublisherClosed is returned by Publish after Close
var ErrPublisherClosed = errors.New("messaging: publisher closed")

// Channel is the subset of *amqp.Channel the publisher uses
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes events to a durable topic exchange. The routing key
// is "<aggregate>.<event type>" in lower case, e.g. vaultledger.indexadvanced.
type AMQPPublisher struct {
	channel    Channel
	conn       *amqp.Connection
	exchange   string
	serializer *EventSerializer
	logger     *zap.Logger
}

var _ shared.EventPublisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher declares the exchange on ch and returns a publisher over it
func NewAMQPPublisher(ch Channel, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{
		channel:    ch,
		exchange:   exchange,
		serializer: NewEventSerializer(),
		logger:     logger,
	}, nil
}

// Dial connects to the broker named in cfg and opens a publishing channel
func Dial(cfg config.MessagingConfig, logger *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	p, err := NewAMQPPublisher(ch, cfg.Exchange, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	logger.Info("Connected to RabbitMQ", zap.String("exchange", cfg.Exchange))
	return p, nil
}

// RoutingKey returns the topic routing key of event
func RoutingKey(event shared.DomainEvent) string {
	return strings.ToLower(event.AggregateType() + "." + event.EventType())
}

// Publish implements EventPublisher. It stops at the first failed event.
func (p *AMQPPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if p.channel == nil {
		return ErrPublisherClosed
	}
	for _, event := range events {
		if err := p.publishOne(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (p *AMQPPublisher) publishOne(ctx context.Context, event shared.DomainEvent) error {
	ctx, span := telemetry.StartClientSpan(ctx, "amqp", "publish")
	defer span.End()
	telemetry.SetAttributes(span, "event.type", event.EventType(), "event.id", event.EventID().String())

	body, err := p.serializer.Serialize(event)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		RoutingKey(event),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.EventID().String(),
			Timestamp:    event.OccurredAt(),
			Type:         event.EventType(),
			Body:         body,
		},
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to publish %s: %w", event.EventType(), err)
	}
	p.logger.Debug("Event published",
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
	)
	return nil
}

// Close closes the channel and, when opened by Dial, the connection
func (p *AMQPPublisher) Close() error {
	if p.channel == nil {
		return nil
	}
	err := p.channel.Close()
	p.channel = nil
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
		p.conn = nil
	}
	return err
}
