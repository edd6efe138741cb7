package queue

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/chat-relay/internal/domain"
	"github.com/cuongbtq/chat-relay/shared/clock"
)

// Config holds queue timing and retry configuration
type Config struct {
	MinDelay     time.Duration
	MaxDelay     time.Duration
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	MaxAttempts  int
	PollInterval time.Duration
	MinInterval  time.Duration
}

// DefaultConfig returns the stock pacing and retry settings.
func DefaultConfig() Config {
	return Config{
		MinDelay:     1000 * time.Millisecond,
		MaxDelay:     3000 * time.Millisecond,
		BaseBackoff:  2000 * time.Millisecond,
		MaxBackoff:   30000 * time.Millisecond,
		MaxAttempts:  3,
		PollInterval: 250 * time.Millisecond,
	}
}

// Store is the durable copy of queue state. The in-memory queue stays
// authoritative; store failures are logged and never roll back a transition.
type Store interface {
	SaveJob(ctx context.Context, job domain.Job) error
	UpdateJob(ctx context.Context, id string, update domain.JobUpdate) error
	GetJob(ctx context.Context, id string) (domain.Job, error)
	ListJobsByStatus(ctx context.Context, statuses ...domain.JobStatus) ([]domain.Job, error)
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error)
	DeleteJobs(ctx context.Context, status domain.JobStatus, before time.Time) (int, error)
}

// Dispatcher performs the external action for a job.
type Dispatcher interface {
	Dispatch(ctx context.Context, job domain.Job) (*domain.DeliveryResult, error)
}

// Event is emitted when a job reaches completed or failed.
type Event struct {
	Name   string
	Job    domain.Job
	Result *domain.DeliveryResult
	Err    error
}

// EventPayload is the webhook data sent for a queue event.
type EventPayload struct {
	JobID      string           `json:"job_id"`
	Type       domain.JobType   `json:"type"`
	Recipient  string           `json:"recipient"`
	Status     domain.JobStatus `json:"status"`
	Attempts   int              `json:"attempts"`
	RetryCount int              `json:"retry_count"`
	ExternalID string           `json:"external_id,omitempty"`
	Backend    string           `json:"backend,omitempty"`
	Error      string           `json:"error,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func (e Event) Payload() EventPayload {
	p := EventPayload{
		JobID:      e.Job.ID,
		Type:       e.Job.Type,
		Recipient:  e.Job.Recipient,
		Status:     e.Job.Status,
		Attempts:   e.Job.Attempts,
		RetryCount: e.Job.RetryCount,
		Error:      e.Job.ErrorMessage,
		UpdatedAt:  e.Job.UpdatedAt,
	}
	if e.Result != nil {
		p.ExternalID = e.Result.ExternalID
		p.Backend = e.Result.Backend
	}
	return p
}

// Listener receives queue events on the worker goroutine; it must not block.
type Listener func(Event)

// Counts is a per-status tally.
type Counts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

func (c *Counts) add(status domain.JobStatus, n int) {
	switch status {
	case domain.JobStatusPending:
		c.Pending += n
	case domain.JobStatusProcessing:
		c.Processing += n
	case domain.JobStatusCompleted:
		c.Completed += n
	case domain.JobStatusFailed:
		c.Failed += n
	case domain.JobStatusCancelled:
		c.Cancelled += n
	}
}

// Status is a read-only snapshot of the queue. Persisted is nil when the
// store could not be read.
type Status struct {
	Paused    bool    `json:"paused"`
	InMemory  Counts  `json:"in_memory"`
	Persisted *Counts `json:"persisted"`
}

// Queue serializes job processing through a single worker. All state is
// guarded by mu; writeMu orders store writes to match in-memory transitions.
type Queue struct {
	cfg        Config
	store      Store
	dispatcher Dispatcher
	logger     *slog.Logger
	clock      clock.Clock

	mu           sync.Mutex
	writeMu      sync.Mutex
	jobs         map[string]*entry
	ready        readyHeap
	delayed      delayedHeap
	seq          uint64
	paused       bool
	lastDispatch time.Time
	listeners    []Listener

	wake chan struct{}
}

// Option customizes a Queue.
type Option func(*Queue)

// WithClock replaces the wall clock used for timestamps and eligibility.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) {
		q.clock = c
	}
}

// New creates a queue. Zero-valued config fields fall back to DefaultConfig.
func New(cfg Config, store Store, dispatcher Dispatcher, logger *slog.Logger, opts ...Option) *Queue {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}

	q := &Queue{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		clock:      clock.NewRealClock(),
		jobs:       make(map[string]*entry),
		wake:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Subscribe registers l for completed and failed events.
func (q *Queue) Subscribe(l Listener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, l)
}

// Enqueue validates spec, schedules the job after a random pacing delay and
// returns it in pending status. Processing happens asynchronously.
func (q *Queue) Enqueue(ctx context.Context, spec domain.JobSpec) (domain.Job, error) {
	jobType, priority, err := spec.Validate()
	if err != nil {
		return domain.Job{}, err
	}

	now := q.clock.Now()
	job := domain.Job{
		ID:           uuid.NewString(),
		Type:         jobType,
		Recipient:    spec.Recipient,
		Content:      spec.Content,
		MediaURL:     spec.MediaURL,
		MediaType:    spec.MediaType,
		TemplateVars: spec.TemplateVars,
		Status:       domain.JobStatusPending,
		Priority:     priority,
		MaxAttempts:  q.cfg.MaxAttempts,
		ScheduledAt:  now.Add(pacingDelay(q.cfg.MinDelay, q.cfg.MaxDelay)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	job = job.Clone()

	q.mu.Lock()
	q.seq++
	e := &entry{job: job, seq: q.seq}
	q.jobs[job.ID] = e
	q.schedule(e)
	q.commit(func() {
		if err := q.store.SaveJob(ctx, job); err != nil {
			q.logPersistError("save job", job.ID, err)
		}
	})

	q.logger.Info("Job enqueued",
		slog.String("job_id", job.ID),
		slog.String("job_type", string(job.Type)),
		slog.String("priority", string(job.Priority)),
		slog.Time("scheduled_at", job.ScheduledAt),
	)

	q.signal()
	return job.Clone(), nil
}

// GetJob returns the in-memory record, falling back to the store.
func (q *Queue) GetJob(ctx context.Context, id string) (domain.Job, error) {
	q.mu.Lock()
	if e, ok := q.jobs[id]; ok {
		job := e.job.Clone()
		q.mu.Unlock()
		return job, nil
	}
	q.mu.Unlock()

	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Job{}, domain.NotFoundError("job", id)
		}
		return domain.Job{}, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return job, nil
}

// Cancel cancels a pending job. It returns false for processing or finished
// jobs and leaves them untouched.
func (q *Queue) Cancel(ctx context.Context, id string) (bool, error) {
	q.mu.Lock()
	e, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		job, err := q.GetJob(ctx, id)
		if err != nil {
			return false, err
		}
		if job.Status != domain.JobStatusPending {
			return false, nil
		}
		// persisted but never reconciled; adopt it so the cancel sticks
		q.mu.Lock()
		if e, ok = q.jobs[id]; !ok {
			q.seq++
			e = &entry{job: job, seq: q.seq}
			q.jobs[id] = e
		}
	}

	if e.job.Status != domain.JobStatusPending {
		status := e.job.Status
		q.mu.Unlock()
		q.logger.Debug("Cancel ignored",
			slog.String("job_id", id),
			slog.String("status", string(status)),
		)
		return false, nil
	}

	if !q.transition(e, domain.JobStatusCancelled, q.clock.Now()) {
		q.mu.Unlock()
		return false, nil
	}
	e.gen++
	update := e.job.Update()
	q.commit(func() {
		if err := q.store.UpdateJob(ctx, id, update); err != nil {
			q.logPersistError("cancel job", id, err)
		}
	})

	q.logger.Info("Job cancelled", slog.String("job_id", id))
	return true, nil
}

// Retry moves a failed job back to pending. RetryCount keeps growing across
// manual retries; a job that used all its attempts gets exactly one more.
func (q *Queue) Retry(ctx context.Context, id string) (bool, error) {
	q.mu.Lock()
	e, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		job, err := q.GetJob(ctx, id)
		if err != nil {
			return false, err
		}
		if job.Status != domain.JobStatusFailed {
			return false, &domain.StateError{JobID: id, Status: job.Status, Operation: "retry"}
		}
		q.mu.Lock()
		if e, ok = q.jobs[id]; !ok {
			q.seq++
			e = &entry{job: job, seq: q.seq}
			q.jobs[id] = e
		}
	}

	if e.job.Status != domain.JobStatusFailed {
		status := e.job.Status
		q.mu.Unlock()
		return false, &domain.StateError{JobID: id, Status: status, Operation: "retry"}
	}

	now := q.clock.Now()
	if !q.transition(e, domain.JobStatusPending, now) {
		status := e.job.Status
		q.mu.Unlock()
		return false, &domain.StateError{JobID: id, Status: status, Operation: "retry"}
	}
	e.job.RetryCount++
	if e.job.Attempts >= e.job.MaxAttempts {
		e.job.MaxAttempts = e.job.Attempts + 1
	}
	e.job.ScheduledAt = now.Add(pacingDelay(q.cfg.MinDelay, q.cfg.MaxDelay))
	q.schedule(e)
	update := e.job.Update()
	retryCount := e.job.RetryCount
	q.commit(func() {
		if err := q.store.UpdateJob(ctx, id, update); err != nil {
			q.logPersistError("retry job", id, err)
		}
	})

	q.logger.Info("Job manually retried",
		slog.String("job_id", id),
		slog.Int("retry_count", retryCount),
	)

	q.signal()
	return true, nil
}

// Pause stops the worker before it takes the next job; an in-flight job finishes.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
	q.logger.Info("Queue paused")
}

func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.logger.Info("Queue resumed")
	q.signal()
}

func (q *Queue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Status returns in-memory counts next to the persisted ones.
func (q *Queue) Status(ctx context.Context) Status {
	q.mu.Lock()
	st := Status{Paused: q.paused}
	for _, e := range q.jobs {
		st.InMemory.add(e.job.Status, 1)
	}
	q.mu.Unlock()

	counts, err := q.store.CountByStatus(ctx)
	if err != nil {
		q.logger.Warn("Failed to count persisted jobs", slog.Any("error", err))
		return st
	}

	persisted := &Counts{}
	for status, n := range counts {
		persisted.add(status, n)
	}
	st.Persisted = persisted
	return st
}

// Cleanup removes completed or failed jobs last updated before now-olderThan,
// in memory and in the store. It returns the persisted count when the store
// succeeds, otherwise the in-memory count.
func (q *Queue) Cleanup(ctx context.Context, olderThan time.Duration, status domain.JobStatus) (int, error) {
	if status != domain.JobStatusCompleted && status != domain.JobStatusFailed {
		return 0, fmt.Errorf("cannot clean up %s jobs: %w", status, domain.ErrInvalidState)
	}
	if olderThan < 0 {
		return 0, domain.NewValidationError("older_than", "must not be negative")
	}

	cutoff := q.clock.Now().Add(-olderThan)

	q.mu.Lock()
	removed := 0
	for id, e := range q.jobs {
		if e.job.Status == status && e.job.UpdatedAt.Before(cutoff) {
			delete(q.jobs, id)
			removed++
		}
	}
	q.mu.Unlock()

	deleted, err := q.store.DeleteJobs(ctx, status, cutoff)
	if err != nil {
		q.logPersistError("clean up jobs", "", err)
		deleted = removed
	}

	q.logger.Info("Jobs cleaned up",
		slog.String("status", string(status)),
		slog.Duration("older_than", olderThan),
		slog.Int("removed_in_memory", removed),
		slog.Int("removed", deleted),
	)
	return deleted, nil
}

// Reconcile re-queues persisted pending and processing jobs left by a
// previous run. Processing jobs were interrupted and go back to pending.
func (q *Queue) Reconcile(ctx context.Context) (int, error) {
	jobs, err := q.store.ListJobsByStatus(ctx, domain.JobStatusPending, domain.JobStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to load unfinished jobs: %w", err)
	}

	restored := 0
	for _, job := range jobs {
		q.mu.Lock()
		if _, exists := q.jobs[job.ID]; exists {
			q.mu.Unlock()
			continue
		}

		now := q.clock.Now()
		interrupted := job.Status == domain.JobStatusProcessing
		job.ScheduledAt = now.Add(pacingDelay(q.cfg.MinDelay, q.cfg.MaxDelay))
		if job.MaxAttempts <= 0 {
			job.MaxAttempts = q.cfg.MaxAttempts
		}

		q.seq++
		e := &entry{job: job.Clone(), seq: q.seq}
		var updates []domain.JobUpdate
		if interrupted {
			// the lost attempt counts as a failure, then takes the retry edge
			q.transition(e, domain.JobStatusFailed, now)
			e.job.ErrorMessage = "interrupted by restart"
			updates = append(updates, e.job.Update())
			q.transition(e, domain.JobStatusPending, now)
			updates = append(updates, e.job.Update())
		}
		q.jobs[job.ID] = e
		q.schedule(e)
		q.commit(func() {
			for _, update := range updates {
				if err := q.store.UpdateJob(ctx, job.ID, update); err != nil {
					q.logPersistError("requeue interrupted job", job.ID, err)
				}
			}
		})
		restored++
	}

	if restored > 0 {
		q.logger.Info("Unfinished jobs re-queued", slog.Int("count", restored))
		q.signal()
	}
	return restored, nil
}

// transition moves e to status to, refusing edges outside the job lifecycle
// graph. Caller holds mu.
func (q *Queue) transition(e *entry, to domain.JobStatus, now time.Time) bool {
	if !domain.CanTransition(e.job.Status, to) {
		q.logger.Error("Illegal job transition refused",
			slog.String("job_id", e.job.ID),
			slog.String("from", string(e.job.Status)),
			slog.String("to", string(to)),
		)
		return false
	}
	e.job.Status = to
	e.job.UpdatedAt = now
	return true
}

// schedule pushes e onto the delayed heap under a fresh generation. Caller holds mu.
func (q *Queue) schedule(e *entry) {
	e.gen++
	heap.Push(&q.delayed, item{
		e:      e,
		gen:    e.gen,
		weight: e.job.Priority.Weight(),
		seq:    e.seq,
		at:     e.job.ScheduledAt,
	})
}

// commit releases mu and runs write while holding writeMu, so store writes
// land in the order their transitions happened. Caller holds mu.
func (q *Queue) commit(write func()) {
	q.writeMu.Lock()
	q.mu.Unlock()
	defer q.writeMu.Unlock()
	write()
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) logPersistError(operation, jobID string, err error) {
	q.logger.Error("Failed to persist job state",
		slog.String("operation", operation),
		slog.String("job_id", jobID),
		slog.Any("error", err),
	)
}
