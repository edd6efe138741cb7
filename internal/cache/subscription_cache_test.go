package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/chat-relay/internal/domain"
	"github.com/cuongbtq/chat-relay/shared/logger"
)

// memoryRedis implements the commands the cache uses.
type memoryRedis struct {
	redis.Cmdable
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	failAll bool
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

var errRedisDown = errors.New("dial tcp: connection refused")

func (m *memoryRedis) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return redis.NewStringResult("", errRedisDown)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return redis.NewStatusResult("", errRedisDown)
	}
	m.data[key] = string(value.([]byte))
	m.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return redis.NewIntResult(0, errRedisDown)
	}
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *memoryRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return redis.NewIntResult(0, errRedisDown)
	}
	n, _ := strconv.ParseInt(m.data[key], 10, 64)
	n++
	m.data[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

type fakeRepo struct {
	subs      []domain.Subscription
	listCalls int
	err       error
	// afterList runs once, after the active list is read
	afterList func()
}

func (r *fakeRepo) SaveSubscription(_ context.Context, sub domain.Subscription) error {
	if r.err != nil {
		return r.err
	}
	r.subs = append(r.subs, sub)
	return nil
}

func (r *fakeRepo) GetSubscription(_ context.Context, id string) (domain.Subscription, error) {
	for _, s := range r.subs {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Subscription{}, domain.NotFoundError("subscription", id)
}

func (r *fakeRepo) ListActiveSubscriptions(context.Context) ([]domain.Subscription, error) {
	r.listCalls++
	if r.err != nil {
		return nil, r.err
	}
	var out []domain.Subscription
	for _, s := range r.subs {
		if s.IsActive {
			out = append(out, s)
		}
	}
	if hook := r.afterList; hook != nil {
		r.afterList = nil
		hook()
	}
	return out, nil
}

func (r *fakeRepo) ListSubscriptions(context.Context) ([]domain.Subscription, error) {
	return r.subs, r.err
}

func (r *fakeRepo) DeactivateSubscription(_ context.Context, id string) error {
	for i, s := range r.subs {
		if s.ID == id && s.IsActive {
			r.subs[i].IsActive = false
			return nil
		}
	}
	return domain.NotFoundError("subscription", id)
}

func TestSubscriptionCache_ReadThrough(t *testing.T) {
	repo := &fakeRepo{subs: []domain.Subscription{
		{ID: "s-1", URL: "https://a", Secret: "k1", Events: []string{"job.completed"}, IsActive: true},
	}}
	rdb := newMemoryRedis()
	c := NewSubscriptionCache(repo, rdb, 30*time.Second, logger.NewDiscard())

	first, err := c.ListActiveSubscriptions(context.Background())
	require.NoError(t, err)
	second, err := c.ListActiveSubscriptions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, repo.listCalls)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].Events, second[0].Events)
	assert.Equal(t, "k1", second[0].Secret)
	assert.Equal(t, 30*time.Second, rdb.ttls[activeSubscriptionsKey])
}

func TestSubscriptionCache_WritesInvalidate(t *testing.T) {
	repo := &fakeRepo{}
	rdb := newMemoryRedis()
	c := NewSubscriptionCache(repo, rdb, 0, logger.NewDiscard())
	ctx := context.Background()

	subs, err := c.ListActiveSubscriptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)

	require.NoError(t, c.SaveSubscription(ctx, domain.Subscription{ID: "s-1", URL: "https://a", Events: []string{"*"}, IsActive: true}))

	subs, err = c.ListActiveSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	require.NoError(t, c.DeactivateSubscription(ctx, "s-1"))

	subs, err = c.ListActiveSubscriptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
	assert.Equal(t, 3, repo.listCalls)

	err = c.DeactivateSubscription(ctx, "s-1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSubscriptionCache_DeactivateDuringFill(t *testing.T) {
	repo := &fakeRepo{subs: []domain.Subscription{{ID: "s-1", URL: "https://a", Events: []string{"*"}, IsActive: true}}}
	rdb := newMemoryRedis()
	c := NewSubscriptionCache(repo, rdb, time.Minute, logger.NewDiscard())
	ctx := context.Background()

	repo.afterList = func() {
		require.NoError(t, c.DeactivateSubscription(ctx, "s-1"))
	}

	stale, err := c.ListActiveSubscriptions(ctx)
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	_, cached := rdb.data[activeSubscriptionsKey]
	assert.False(t, cached)

	subs, err := c.ListActiveSubscriptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
	assert.Equal(t, 2, repo.listCalls)
}

func TestSubscriptionCache_RedisDownFallsBack(t *testing.T) {
	repo := &fakeRepo{subs: []domain.Subscription{{ID: "s-1", IsActive: true}}}
	rdb := newMemoryRedis()
	rdb.failAll = true
	c := NewSubscriptionCache(repo, rdb, time.Minute, logger.NewDiscard())
	ctx := context.Background()

	subs, err := c.ListActiveSubscriptions(ctx)
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	require.NoError(t, c.SaveSubscription(ctx, domain.Subscription{ID: "s-2", IsActive: true}))

	subs, err = c.ListActiveSubscriptions(ctx)
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestSubscriptionCache_CorruptEntry(t *testing.T) {
	repo := &fakeRepo{subs: []domain.Subscription{{ID: "s-1", IsActive: true}}}
	rdb := newMemoryRedis()
	rdb.data[activeSubscriptionsKey] = "not json"
	c := NewSubscriptionCache(repo, rdb, time.Minute, logger.NewDiscard())

	subs, err := c.ListActiveSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Len(t, subs, 1)
	assert.Equal(t, 1, repo.listCalls)
}

func TestSubscriptionCache_RepoError(t *testing.T) {
	repo := &fakeRepo{err: errors.New("db down")}
	c := NewSubscriptionCache(repo, newMemoryRedis(), time.Minute, logger.NewDiscard())

	_, err := c.ListActiveSubscriptions(context.Background())
	assert.Error(t, err)

	err = c.SaveSubscription(context.Background(), domain.Subscription{ID: "x"})
	assert.Error(t, err)
}
