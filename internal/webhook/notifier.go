package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/chat-relay/internal/domain"
)

const (
	EnvelopeVersion = "1.0"

	DefaultTimeout     = 10 * time.Second
	DefaultConcurrency = 8
	DefaultUserAgent   = "chat-relay-webhook/1.0"
)

// SubscriptionSource supplies the active subscriptions.
type SubscriptionSource interface {
	ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error)
}

// Config holds notifier configuration
type Config struct {
	Timeout     time.Duration
	Concurrency int
	UserAgent   string
}

// Envelope is the JSON body POSTed to every subscriber.
type Envelope struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Version   string    `json:"version"`
}

// Report summarizes one fan-out.
type Report struct {
	Matched   int `json:"matched"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Notifier fans events out to subscribers. Delivery is fire-and-forget: a
// failing subscriber is logged and never affects the others or the caller.
type Notifier struct {
	source SubscriptionSource
	client *http.Client
	cfg    Config
	logger *slog.Logger

	inflight sync.WaitGroup
}

func NewNotifier(source SubscriptionSource, cfg Config, logger *slog.Logger) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	return &Notifier{
		source: source,
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
	}
}

// Notify delivers event to every active subscription that wants it and waits
// for all of them. It never returns an error.
func (n *Notifier) Notify(ctx context.Context, event string, payload any) Report {
	subs, err := n.source.ListActiveSubscriptions(ctx)
	if err != nil {
		n.logger.Error("Failed to load webhook subscriptions",
			slog.String("event", event),
			slog.Any("error", err),
		)
		return Report{}
	}

	var targets []domain.Subscription
	for _, sub := range subs {
		if sub.IsActive && sub.Subscribes(event) {
			targets = append(targets, sub)
		}
	}

	report := Report{Matched: len(targets)}
	if len(targets) == 0 {
		n.logger.Debug("No webhook subscribers for event", slog.String("event", event))
		return report
	}

	body, err := n.envelope(event, payload)
	if err != nil {
		n.logger.Error("Failed to encode webhook envelope",
			slog.String("event", event),
			slog.Any("error", err),
		)
		report.Failed = len(targets)
		return report
	}

	var delivered, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(n.cfg.Concurrency)
	for _, sub := range targets {
		g.Go(func() error {
			if err := n.post(ctx, sub, event, body); err != nil {
				failed.Add(1)
				n.logger.Warn("Webhook delivery failed",
					slog.String("subscription_id", sub.ID),
					slog.String("url", sub.URL),
					slog.String("event", event),
					slog.Any("error", err),
				)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report.Delivered = int(delivered.Load())
	report.Failed = int(failed.Load())

	n.logger.Info("Webhook event dispatched",
		slog.String("event", event),
		slog.Int("matched", report.Matched),
		slog.Int("delivered", report.Delivered),
		slog.Int("failed", report.Failed),
	)
	return report
}

// NotifyAsync runs Notify in the background with its own deadline.
func (n *Notifier) NotifyAsync(event string, payload any) {
	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*n.cfg.Timeout)
		defer cancel()
		n.Notify(ctx, event, payload)
	}()
}

// Wait blocks until background notifications finish or ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver sends one event to one subscription, regardless of its event filter.
func (n *Notifier) Deliver(ctx context.Context, sub domain.Subscription, event string, payload any) error {
	body, err := n.envelope(event, payload)
	if err != nil {
		return fmt.Errorf("failed to encode webhook envelope: %w", err)
	}
	return n.post(ctx, sub, event, body)
}

func (n *Notifier) envelope(event string, payload any) ([]byte, error) {
	return json.Marshal(Envelope{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      payload,
		Version:   EnvelopeVersion,
	})
}

func (n *Notifier) post(ctx context.Context, sub domain.Subscription, event string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWebhookDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", n.cfg.UserAgent)
	req.Header.Set(EventHeader, event)
	if sub.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, sub.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWebhookDelivery, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned status %d", domain.ErrWebhookDelivery, sub.URL, resp.StatusCode)
	}
	return nil
}
