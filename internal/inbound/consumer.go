package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/chat-relay/internal/domain"
	"github.com/cuongbtq/chat-relay/internal/webhook"
)

// DeliverySource yields broker deliveries; shared/rabbitmq.Client implements it.
type DeliverySource interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// EventNotifier fans an event out to webhook subscribers.
type EventNotifier interface {
	Notify(ctx context.Context, event string, payload any) webhook.Report
}

var ErrMalformedEvent = errors.New("malformed inbound event")

// Event is one inbound chat event taken off the broker.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

type message struct {
	event       Event
	delivery    amqp.Delivery
	deliveryTag uint64
}

// Config holds consumer configuration
type Config struct {
	ConsumerTag string
	Concurrency int
}

// Consumer turns inbound broker events into webhook notifications.
type Consumer struct {
	source      DeliverySource
	notifier    EventNotifier
	logger      *slog.Logger
	consumerTag string
	concurrency int

	messages chan *message
	wg       sync.WaitGroup
}

func NewConsumer(source DeliverySource, notifier EventNotifier, cfg Config, logger *slog.Logger) *Consumer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ConsumerTag == "" {
		cfg.ConsumerTag = "chat-relay-inbound"
	}
	return &Consumer{
		source:      source,
		notifier:    notifier,
		logger:      logger,
		consumerTag: cfg.ConsumerTag,
		concurrency: cfg.Concurrency,
		messages:    make(chan *message),
	}
}

// ParseEvent decodes a delivery body. A missing event name means message.received.
func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	ev.Name = strings.TrimSpace(ev.Name)
	if ev.Name == "" {
		ev.Name = domain.EventMessageReceived
	}
	if len(ev.Data) == 0 || string(ev.Data) == "null" {
		return Event{}, fmt.Errorf("%w: data is required", ErrMalformedEvent)
	}
	return ev, nil
}

// Run consumes until ctx is done or the delivery channel closes, then waits
// for in-flight notifications.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.source.Consume(c.consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Inbound consumer started",
		slog.String("consumer_tag", c.consumerTag),
		slog.Int("concurrency", c.concurrency),
	)

	c.spawnPool(ctx)
	c.dispatch(ctx, deliveries)

	close(c.messages)
	c.wg.Wait()

	c.logger.Info("Inbound consumer stopped")
	return nil
}

// dispatch parses deliveries and hands them to the pool. Malformed bodies are
// dropped without requeue.
func (c *Consumer) dispatch(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			ev, err := ParseEvent(delivery.Body)
			if err != nil {
				c.logger.Error("Dropping malformed inbound event",
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
					slog.Any("error", err),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					c.logger.Error("Failed to NACK malformed message", slog.Any("error", nackErr))
				}
				continue
			}

			msg := &message{event: ev, delivery: delivery, deliveryTag: delivery.DeliveryTag}
			select {
			case c.messages <- msg:
			case <-ctx.Done():
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					c.logger.Error("Failed to NACK message on shutdown", slog.Any("error", nackErr))
				}
				return
			}
		}
	}
}
