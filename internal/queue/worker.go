package queue

import (
	"container/heap"
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/chat-relay/internal/domain"
)

// Run drives the single worker until ctx is done. A delivery already in
// flight is allowed to finish; the dispatcher's own timeout bounds it.
func (q *Queue) Run(ctx context.Context) {
	q.logger.Info("Queue worker started",
		slog.Duration("min_delay", q.cfg.MinDelay),
		slog.Duration("max_delay", q.cfg.MaxDelay),
		slog.Int("max_attempts", q.cfg.MaxAttempts),
		slog.Duration("min_interval", q.cfg.MinInterval),
	)

	for {
		if ctx.Err() != nil {
			q.logger.Info("Queue worker stopped")
			return
		}

		job, wait, ok := q.next(ctx)
		if ok {
			q.process(ctx, job)
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			q.logger.Info("Queue worker stopped")
			return
		case <-q.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// next claims the highest-priority eligible job and marks it processing.
// When nothing can run it returns how long to sleep.
func (q *Queue) next(ctx context.Context) (domain.Job, time.Duration, bool) {
	q.mu.Lock()

	if q.paused {
		q.mu.Unlock()
		return domain.Job{}, q.cfg.PollInterval, false
	}

	now := q.clock.Now()
	q.promote(now)

	if q.cfg.MinInterval > 0 && !q.lastDispatch.IsZero() {
		if gap := q.lastDispatch.Add(q.cfg.MinInterval).Sub(now); gap > 0 {
			q.mu.Unlock()
			return domain.Job{}, gap, false
		}
	}

	for q.ready.Len() > 0 {
		it := heap.Pop(&q.ready).(item)
		if !it.live() {
			continue
		}

		e := it.e
		if !q.transition(e, domain.JobStatusProcessing, now) {
			continue
		}
		e.gen++
		e.job.Attempts++
		q.lastDispatch = now

		job := e.job.Clone()
		update := e.job.Update()
		q.commit(func() {
			if err := q.store.UpdateJob(ctx, job.ID, update); err != nil {
				q.logPersistError("mark processing", job.ID, err)
			}
		})

		q.logger.Info("Job processing",
			slog.String("job_id", job.ID),
			slog.String("job_type", string(job.Type)),
			slog.Int("attempt", job.Attempts),
			slog.Int("retry_count", job.RetryCount),
		)
		return job, 0, true
	}

	wait := q.cfg.PollInterval
	if q.delayed.Len() > 0 {
		if d := q.delayed[0].at.Sub(now); d < wait {
			wait = d
		}
	}
	q.mu.Unlock()

	if wait <= 0 {
		wait = time.Millisecond
	}
	return domain.Job{}, wait, false
}

// promote moves delayed jobs whose time has come onto the ready heap. Caller holds mu.
func (q *Queue) promote(now time.Time) {
	for q.delayed.Len() > 0 {
		it := q.delayed[0]
		if !it.live() {
			heap.Pop(&q.delayed)
			continue
		}
		if it.at.After(now) {
			return
		}
		heap.Pop(&q.delayed)
		heap.Push(&q.ready, it)
	}
}

func (q *Queue) process(ctx context.Context, job domain.Job) {
	dctx := context.WithoutCancel(ctx)
	result, err := q.dispatcher.Dispatch(dctx, job)
	q.finish(dctx, job.ID, result, err)
}

// finish applies the outcome of one delivery attempt. A failure with attempts
// left is recorded as failed and then re-queued through the retry edge.
func (q *Queue) finish(ctx context.Context, id string, result *domain.DeliveryResult, deliveryErr error) {
	q.mu.Lock()
	e, ok := q.jobs[id]
	if !ok || e.job.Status != domain.JobStatusProcessing {
		q.mu.Unlock()
		q.logger.Warn("Finished job no longer tracked", slog.String("job_id", id))
		return
	}

	now := q.clock.Now()
	var event *Event
	var backoff time.Duration
	var updates []domain.JobUpdate

	switch {
	case deliveryErr == nil:
		q.transition(e, domain.JobStatusCompleted, now)
		e.job.ErrorMessage = ""
		event = &Event{Name: domain.EventJobCompleted, Job: e.job.Clone(), Result: result}

	case e.job.Attempts < e.job.MaxAttempts:
		q.transition(e, domain.JobStatusFailed, now)
		e.job.ErrorMessage = deliveryErr.Error()
		updates = append(updates, e.job.Update())

		q.transition(e, domain.JobStatusPending, now)
		e.job.RetryCount++
		backoff = Backoff(q.cfg.BaseBackoff, q.cfg.MaxBackoff, e.job.RetryCount)
		e.job.ScheduledAt = now.Add(backoff)
		q.schedule(e)

	default:
		q.transition(e, domain.JobStatusFailed, now)
		e.job.ErrorMessage = deliveryErr.Error()
		event = &Event{Name: domain.EventJobFailed, Job: e.job.Clone(), Err: deliveryErr}
	}

	job := e.job.Clone()
	updates = append(updates, e.job.Update())
	listeners := append([]Listener(nil), q.listeners...)
	q.commit(func() {
		for _, update := range updates {
			if err := q.store.UpdateJob(ctx, id, update); err != nil {
				q.logPersistError("record delivery outcome", id, err)
			}
		}
	})

	switch job.Status {
	case domain.JobStatusCompleted:
		q.logger.Info("Job completed",
			slog.String("job_id", id),
			slog.Int("attempts", job.Attempts),
		)
	case domain.JobStatusPending:
		q.logger.Warn("Job delivery failed, retry scheduled",
			slog.String("job_id", id),
			slog.Int("attempts", job.Attempts),
			slog.Int("max_attempts", job.MaxAttempts),
			slog.Int("retry_count", job.RetryCount),
			slog.Duration("backoff", backoff),
			slog.Any("error", deliveryErr),
		)
	default:
		q.logger.Error("Job failed",
			slog.String("job_id", id),
			slog.Int("attempts", job.Attempts),
			slog.Int("retry_count", job.RetryCount),
			slog.Any("error", deliveryErr),
		)
	}

	if event != nil {
		for _, l := range listeners {
			l(*event)
		}
	}
}
