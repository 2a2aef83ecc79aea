// Package amqpbus publishes stream lifecycle events to a RabbitMQ exchange.
// It is a plugin: register it with the engine and every persisted event is
// published with the event type as routing key.
package amqpbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xraph/vesting/event"
	"github.com/xraph/vesting/plugin"
)

// DefaultExchange is the exchange events are published to.
const DefaultExchange = "vesting.events"

// ErrNilChannel is returned when no channel is given.
var ErrNilChannel = errors.New("amqpbus: channel is nil")

var (
	_ plugin.Plugin          = (*Publisher)(nil)
	_ plugin.OnEventRecorded = (*Publisher)(nil)
	_ plugin.OnShutdown      = (*Publisher)(nil)
)

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
	Close() error
}

// Publisher forwards recorded events to an exchange.
type Publisher struct {
	ch       Channel
	exchange string
	appID    string
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithExchange overrides DefaultExchange.
func WithExchange(name string) Option {
	return func(p *Publisher) { p.exchange = name }
}

// WithAppID sets the AMQP app-id property.
func WithAppID(appID string) Option {
	return func(p *Publisher) { p.appID = appID }
}

// WithPublishTimeout bounds a single publish.
func WithPublishTimeout(d time.Duration) Option {
	return func(p *Publisher) { p.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// New returns a Publisher writing to ch.
func New(ch Channel, opts ...Option) (*Publisher, error) {
	if ch == nil {
		return nil, ErrNilChannel
	}
	p := &Publisher{
		ch:       ch,
		exchange: DefaultExchange,
		appID:    "vesting",
		timeout:  3 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "amqp-event-bus" }

// OnEventRecorded implements plugin.OnEventRecorded.
func (p *Publisher) OnEventRecorded(ctx context.Context, e *event.Event) error {
	return p.Publish(ctx, e)
}

// OnShutdown implements plugin.OnShutdown.
func (p *Publisher) OnShutdown(_ context.Context) error {
	return p.ch.Close()
}

// Publish sends e as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, e *event.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("amqpbus: marshal event %s: %w", e.ID, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID.String(),
		Timestamp:    e.CreatedAt,
		Type:         string(e.Type),
		AppId:        p.appID,
		Headers: amqp.Table{
			"stream_id": e.StreamID.String(),
		},
		Body: body,
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.ch.PublishWithContext(publishCtx, p.exchange, string(e.Type), false, false, msg); err != nil {
		p.logger.Warn("amqpbus: publish failed",
			"event_id", e.ID.String(),
			"type", string(e.Type),
			"error", err,
		)
		return fmt.Errorf("amqpbus: publish %s: %w", e.ID, err)
	}
	return nil
}
