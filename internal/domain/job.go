package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobType names the outbound action a job performs.
type JobType string

const (
	JobSendText     JobType = "send_text"
	JobSendMedia    JobType = "send_media"
	JobSendTemplate JobType = "send_template"
)

// JobTypes lists every recognized job type.
func JobTypes() []JobType {
	return []JobType{JobSendText, JobSendMedia, JobSendTemplate}
}

func ParseJobType(s string) (JobType, error) {
	for _, t := range JobTypes() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unrecognized job type %q", s)
}

// JobStatus is a job's lifecycle state.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

func JobStatuses() []JobStatus {
	return []JobStatus{
		JobStatusPending,
		JobStatusProcessing,
		JobStatusCompleted,
		JobStatusFailed,
		JobStatusCancelled,
	}
}

func ParseJobStatus(s string) (JobStatus, error) {
	for _, st := range JobStatuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unrecognized job status %q", s)
}

// IsTerminal reports whether no further transition happens without a retry.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

var transitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusCancelled},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
	JobStatusFailed:     {JobStatusPending},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
// failed -> pending is the only backward edge (retry).
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Priority is a scheduling hint, not a guarantee.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Weight is the numeric rank used by the scheduler; higher runs first.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 10
	case PriorityLow:
		return 1
	default:
		return 5
	}
}

// ParsePriority maps "" to normal.
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToLower(s)) {
	case "":
		return PriorityNormal, nil
	case PriorityLow:
		return PriorityLow, nil
	case PriorityNormal:
		return PriorityNormal, nil
	case PriorityHigh:
		return PriorityHigh, nil
	}
	return "", fmt.Errorf("unrecognized priority %q", s)
}

// Job is one outbound action with a tracked lifecycle. For send_template,
// Content holds the template name and TemplateVars its variables.
type Job struct {
	ID           string            `json:"id"`
	Type         JobType           `json:"type"`
	Recipient    string            `json:"recipient"`
	Content      string            `json:"content,omitempty"`
	MediaURL     string            `json:"media_url,omitempty"`
	MediaType    string            `json:"media_type,omitempty"`
	TemplateVars map[string]string `json:"template_vars,omitempty"`
	Status       JobStatus         `json:"status"`
	Priority     Priority          `json:"priority"`
	RetryCount   int               `json:"retry_count"`
	Attempts     int               `json:"attempts"`
	MaxAttempts  int               `json:"max_attempts"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ScheduledAt  time.Time         `json:"scheduled_at"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with j.
func (j Job) Clone() Job {
	if j.TemplateVars != nil {
		vars := make(map[string]string, len(j.TemplateVars))
		for k, v := range j.TemplateVars {
			vars[k] = v
		}
		j.TemplateVars = vars
	}
	return j
}

// JobSpec is the enqueue input.
type JobSpec struct {
	Type         string
	Recipient    string
	Content      string
	MediaURL     string
	MediaType    string
	TemplateVars map[string]string
	Priority     string
}

// Validate checks the spec and returns the parsed type and priority.
// Failures are *ValidationError and match ErrInvalidJobSpec.
func (s JobSpec) Validate() (JobType, Priority, error) {
	jobType, err := ParseJobType(s.Type)
	if err != nil {
		return "", "", NewValidationError("type", err.Error())
	}

	if strings.TrimSpace(s.Recipient) == "" {
		return "", "", NewValidationError("recipient", "recipient is required")
	}

	hasContent := s.Content != ""
	hasMedia := s.MediaURL != ""

	switch {
	case !hasContent && !hasMedia:
		return "", "", NewValidationError("content", "either content or media_url is required")
	case hasContent && hasMedia:
		return "", "", NewValidationError("content", "content and media_url are mutually exclusive")
	case hasMedia && s.MediaType == "":
		return "", "", NewValidationError("media_type", "media_type is required with media_url")
	case !hasMedia && s.MediaType != "":
		return "", "", NewValidationError("media_url", "media_type given without media_url")
	}

	switch jobType {
	case JobSendMedia:
		if !hasMedia {
			return "", "", NewValidationError("media_url", "send_media requires media_url")
		}
	case JobSendText, JobSendTemplate:
		if !hasContent {
			return "", "", NewValidationError("content", fmt.Sprintf("%s requires content", jobType))
		}
	}

	if jobType != JobSendTemplate && len(s.TemplateVars) > 0 {
		return "", "", NewValidationError("template_vars", "template_vars only apply to send_template")
	}

	priority, err := ParsePriority(s.Priority)
	if err != nil {
		return "", "", NewValidationError("priority", err.Error())
	}

	return jobType, priority, nil
}

// DeliveryResult is what a backend reports after a successful send.
type DeliveryResult struct {
	ExternalID  string    `json:"external_id,omitempty"`
	Backend     string    `json:"backend"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// JobUpdate carries the mutable fields written on each status transition.
type JobUpdate struct {
	Status       JobStatus
	RetryCount   int
	Attempts     int
	MaxAttempts  int
	ErrorMessage string
	ScheduledAt  time.Time
	UpdatedAt    time.Time
}

// Update snapshots j's mutable fields.
func (j Job) Update() JobUpdate {
	return JobUpdate{
		Status:       j.Status,
		RetryCount:   j.RetryCount,
		Attempts:     j.Attempts,
		MaxAttempts:  j.MaxAttempts,
		ErrorMessage: j.ErrorMessage,
		ScheduledAt:  j.ScheduledAt,
		UpdatedAt:    j.UpdatedAt,
	}
}
