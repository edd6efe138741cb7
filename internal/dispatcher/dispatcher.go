package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuongbtq/chat-relay/internal/domain"
)

// DefaultTimeout bounds one dispatch call when none is configured.
const DefaultTimeout = 30 * time.Second

// Handler performs the external action for one job type. Delivery is
// at-least-once: a handler may see the same job again after a crash.
type Handler func(ctx context.Context, job domain.Job) (*domain.DeliveryResult, error)

// Dispatcher routes jobs to the handler registered for their type.
type Dispatcher struct {
	timeout  time.Duration
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers map[domain.JobType]Handler
}

// New creates a dispatcher whose calls are bounded by timeout.
func New(timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		timeout:  timeout,
		logger:   logger,
		handlers: make(map[domain.JobType]Handler),
	}
}

// Register binds h to jobType, replacing any previous handler.
func (d *Dispatcher) Register(jobType domain.JobType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[jobType] = h
}

// MustCover reports every known job type that has no handler.
func (d *Dispatcher) MustCover() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var missing []string
	for _, t := range domain.JobTypes() {
		if _, ok := d.handlers[t]; !ok {
			missing = append(missing, string(t))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w for job types: %s", domain.ErrNoHandler, strings.Join(missing, ", "))
}

// Dispatch runs the job's handler and returns within the timeout even if the
// handler ignores its context. Every failure is a *domain.DeliveryError.
func (d *Dispatcher) Dispatch(ctx context.Context, job domain.Job) (*domain.DeliveryResult, error) {
	d.mu.RLock()
	h, ok := d.handlers[job.Type]
	d.mu.RUnlock()

	if !ok {
		return nil, &domain.DeliveryError{
			JobID:   job.ID,
			JobType: job.Type,
			Attempt: job.Attempts,
			Err:     fmt.Errorf("%w for job type %s", domain.ErrNoHandler, job.Type),
		}
	}

	dctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		result *domain.DeliveryResult
		err    error
	}
	done := make(chan outcome, 1)

	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		result, err := h(dctx, job)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			timedOut := errors.Is(out.err, context.DeadlineExceeded)
			d.logger.Warn("Dispatch failed",
				slog.String("job_id", job.ID),
				slog.String("job_type", string(job.Type)),
				slog.Duration("elapsed", time.Since(start)),
				slog.Bool("timeout", timedOut),
				slog.Any("error", out.err),
			)
			return nil, &domain.DeliveryError{
				JobID:   job.ID,
				JobType: job.Type,
				Attempt: job.Attempts,
				Timeout: timedOut,
				Err:     out.err,
			}
		}

		result := out.result
		if result == nil {
			result = &domain.DeliveryResult{}
		}
		if result.DeliveredAt.IsZero() {
			result.DeliveredAt = time.Now()
		}

		d.logger.Debug("Dispatch succeeded",
			slog.String("job_id", job.ID),
			slog.String("job_type", string(job.Type)),
			slog.String("backend", result.Backend),
			slog.Duration("elapsed", time.Since(start)),
		)
		return result, nil

	case <-dctx.Done():
		d.logger.Warn("Dispatch timed out",
			slog.String("job_id", job.ID),
			slog.String("job_type", string(job.Type)),
			slog.Duration("timeout", d.timeout),
		)
		return nil, &domain.DeliveryError{
			JobID:   job.ID,
			JobType: job.Type,
			Attempt: job.Attempts,
			Timeout: true,
			Err:     dctx.Err(),
		}
	}
}
