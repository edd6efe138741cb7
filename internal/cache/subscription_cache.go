package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cuongbtq/chat-relay/internal/domain"
)

const (
	activeSubscriptionsKey = "chatrelay:webhooks:active"
	generationKey          = "chatrelay:webhooks:generation"

	DefaultTTL = time.Minute
)

// SubscriptionRepository is the durable subscription store being cached.
type SubscriptionRepository interface {
	SaveSubscription(ctx context.Context, sub domain.Subscription) error
	GetSubscription(ctx context.Context, id string) (domain.Subscription, error)
	ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]domain.Subscription, error)
	DeactivateSubscription(ctx context.Context, id string) error
}

// SubscriptionCache is a read-through Redis cache of the active subscription
// list. Writes go to the repository and drop the cached list. Redis errors
// are logged and fall back to the repository.
type SubscriptionCache struct {
	repo   SubscriptionRepository
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

func NewSubscriptionCache(repo SubscriptionRepository, client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *SubscriptionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SubscriptionCache{repo: repo, client: client, ttl: ttl, logger: logger}
}

// cachedSubscription keeps the secret, which domain.Subscription hides from JSON.
type cachedSubscription struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Secret    string    `json:"secret"`
	Events    []string  `json:"events"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func encode(subs []domain.Subscription) ([]byte, error) {
	out := make([]cachedSubscription, len(subs))
	for i, s := range subs {
		out[i] = cachedSubscription(s)
	}
	return json.Marshal(out)
}

func decode(data []byte) ([]domain.Subscription, error) {
	var in []cachedSubscription
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	subs := make([]domain.Subscription, len(in))
	for i, s := range in {
		subs[i] = domain.Subscription(s)
	}
	return subs, nil
}

func (c *SubscriptionCache) ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	data, err := c.client.Get(ctx, activeSubscriptionsKey).Bytes()
	switch {
	case err == nil:
		subs, decodeErr := decode(data)
		if decodeErr == nil {
			return subs, nil
		}
		c.logger.Warn("Discarding undecodable subscription cache entry", slog.Any("error", decodeErr))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("Subscription cache read failed", slog.Any("error", err))
	}

	gen, genErr := c.generation(ctx)

	subs, err := c.repo.ListActiveSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		c.logger.Warn("Subscription cache generation read failed", slog.Any("error", genErr))
		return subs, nil
	}

	payload, err := encode(subs)
	if err == nil {
		err = c.client.Set(ctx, activeSubscriptionsKey, payload, c.ttl).Err()
	}
	if err != nil {
		c.logger.Warn("Subscription cache write failed", slog.Any("error", err))
		return subs, nil
	}

	// a write that landed while we read the repository may already have
	// deleted the key; drop what we just stored so it is not resurrected
	if after, err := c.generation(ctx); err != nil || after != gen {
		c.logger.Debug("Subscription cache fill raced with a write, dropping entry")
		c.drop(ctx)
	}
	return subs, nil
}

// generation is bumped by every write; zero when no write happened yet.
func (c *SubscriptionCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *SubscriptionCache) SaveSubscription(ctx context.Context, sub domain.Subscription) error {
	if err := c.repo.SaveSubscription(ctx, sub); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

func (c *SubscriptionCache) DeactivateSubscription(ctx context.Context, id string) error {
	if err := c.repo.DeactivateSubscription(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

func (c *SubscriptionCache) GetSubscription(ctx context.Context, id string) (domain.Subscription, error) {
	return c.repo.GetSubscription(ctx, id)
}

func (c *SubscriptionCache) ListSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	return c.repo.ListSubscriptions(ctx)
}

func (c *SubscriptionCache) invalidate(ctx context.Context) {
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		c.logger.Warn("Subscription cache generation bump failed", slog.Any("error", err))
	}
	c.drop(ctx)
}

func (c *SubscriptionCache) drop(ctx context.Context) {
	if err := c.client.Del(ctx, activeSubscriptionsKey).Err(); err != nil {
		c.logger.Warn("Subscription cache invalidation failed", slog.Any("error", err))
	}
}
