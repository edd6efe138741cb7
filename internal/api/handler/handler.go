package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/chat-relay/internal/domain"
	"github.com/cuongbtq/chat-relay/internal/queue"
	"github.com/cuongbtq/chat-relay/internal/storage"
)

// CallerKey is the gin context key holding the authenticated API key name.
const CallerKey = "caller"

// JobQueue is the slice of *queue.Queue the handlers drive.
type JobQueue interface {
	Enqueue(ctx context.Context, spec domain.JobSpec) (domain.Job, error)
	GetJob(ctx context.Context, id string) (domain.Job, error)
	Cancel(ctx context.Context, id string) (bool, error)
	Retry(ctx context.Context, id string) (bool, error)
	Pause()
	Resume()
	IsPaused() bool
	Status(ctx context.Context) queue.Status
	Cleanup(ctx context.Context, olderThan time.Duration, status domain.JobStatus) (int, error)
}

// JobLister pages through persisted jobs.
type JobLister interface {
	ListJobs(ctx context.Context, filter storage.JobFilter, page, limit int) (storage.JobPage, error)
}

// SubscriptionRepository manages webhook subscriptions.
type SubscriptionRepository interface {
	SaveSubscription(ctx context.Context, sub domain.Subscription) error
	GetSubscription(ctx context.Context, id string) (domain.Subscription, error)
	ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error)
	DeactivateSubscription(ctx context.Context, id string) error
}

// WebhookDeliverer sends a single event to one subscription.
type WebhookDeliverer interface {
	Deliver(ctx context.Context, sub domain.Subscription, event string, payload any) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger        *slog.Logger
	Queue         JobQueue
	Jobs          JobLister
	Subscriptions SubscriptionRepository
	Deliverer     WebhookDeliverer
	ServiceName   string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger *slog.Logger
	queue  JobQueue
	jobs   JobLister
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		queue:  deps.Queue,
		jobs:   deps.Jobs,
	}
}

// QueueHandler handles queue control requests
type QueueHandler struct {
	logger *slog.Logger
	queue  JobQueue
}

func NewQueueHandler(deps *Dependencies) *QueueHandler {
	return &QueueHandler{
		logger: deps.Logger,
		queue:  deps.Queue,
	}
}

// WebhookHandler handles webhook subscription requests
type WebhookHandler struct {
	logger        *slog.Logger
	subscriptions SubscriptionRepository
	deliverer     WebhookDeliverer
}

func NewWebhookHandler(deps *Dependencies) *WebhookHandler {
	return &WebhookHandler{
		logger:        deps.Logger,
		subscriptions: deps.Subscriptions,
		deliverer:     deps.Deliverer,
	}
}
