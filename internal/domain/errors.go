package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidJobSpec is returned for malformed enqueue input
	ErrInvalidJobSpec = errors.New("invalid job spec")

	// ErrNotFound is returned for an unknown job or subscription id
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation is not valid for the job's current status
	ErrInvalidState = errors.New("invalid state")

	// ErrDelivery marks dispatcher failures; these trigger the retry logic
	ErrDelivery = errors.New("delivery failed")

	// ErrPersistence marks durable-store failures; logged, never rolled back
	ErrPersistence = errors.New("persistence failed")

	// ErrWebhookDelivery marks a failed POST to one subscriber
	ErrWebhookDelivery = errors.New("webhook delivery failed")

	// ErrNoHandler is returned when no delivery handler is registered for a job type
	ErrNoHandler = errors.New("no handler registered")
)

// ValidationError describes which input field was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid job spec: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidJobSpec
}

// StateError reports an operation rejected by the job's status.
type StateError struct {
	JobID     string
	Status    JobStatus
	Operation string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s job %s in status %s", e.Operation, e.JobID, e.Status)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// DeliveryError wraps a dispatcher failure for one attempt.
type DeliveryError struct {
	JobID   string
	JobType JobType
	Attempt int
	Timeout bool
	Err     error
}

func (e *DeliveryError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("delivery of job %s (%s) timed out on attempt %d: %v", e.JobID, e.JobType, e.Attempt, e.Err)
	}
	return fmt.Sprintf("delivery of job %s (%s) failed on attempt %d: %v", e.JobID, e.JobType, e.Attempt, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}

// NotFoundError names the missing entity.
func NotFoundError(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}
