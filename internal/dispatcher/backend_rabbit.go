package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the part of the RabbitMQ client the backend needs.
type Publisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string, headers amqp.Table) error
}

// RabbitBackend hands send commands to the automation bridge through a
// persistent RabbitMQ queue. Delivery is complete once the broker accepts it.
type RabbitBackend struct {
	publisher  Publisher
	routingKey string
}

// NewRabbitBackend publishes with routingKey; empty uses the client's default.
func NewRabbitBackend(publisher Publisher, routingKey string) *RabbitBackend {
	return &RabbitBackend{publisher: publisher, routingKey: routingKey}
}

func (b *RabbitBackend) Name() string { return "rabbitmq" }

func (b *RabbitBackend) Send(ctx context.Context, cmd SendCommand) (string, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return "", fmt.Errorf("failed to marshal send command: %w", err)
	}

	headers := amqp.Table{
		"job_id":   cmd.JobID,
		"job_type": string(cmd.Type),
		"attempt":  int32(cmd.Attempt),
	}

	if err := b.publisher.PublishWithRetry(ctx, b.routingKey, body, "application/json", headers); err != nil {
		return "", fmt.Errorf("failed to publish send command: %w", err)
	}
	return cmd.JobID, nil
}
