package inbound

import (
	"context"
	"log/slog"
)

func (c *Consumer) spawnPool(ctx context.Context) {
	for i := 0; i < c.concurrency; i++ {
		c.wg.Add(1)
		go c.workerLoop(ctx, i)
	}
}

// workerLoop notifies subscribers for each message, then ACKs it. A
// notification never fails the message: subscriber errors stay in the notifier.
func (c *Consumer) workerLoop(ctx context.Context, workerNum int) {
	defer c.wg.Done()

	notifyCtx := context.WithoutCancel(ctx)
	for msg := range c.messages {
		report := c.notifier.Notify(notifyCtx, msg.event.Name, msg.event.Data)

		if err := msg.delivery.Ack(false); err != nil {
			c.logger.Error("Failed to ACK message",
				slog.Int("worker_num", workerNum),
				slog.Uint64("delivery_tag", msg.deliveryTag),
				slog.Any("error", err),
			)
			continue
		}

		c.logger.Debug("Inbound event relayed",
			slog.Int("worker_num", workerNum),
			slog.String("event", msg.event.Name),
			slog.Int("delivered", report.Delivered),
			slog.Int("failed", report.Failed),
		)
	}
}
