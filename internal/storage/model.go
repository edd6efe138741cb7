package storage

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/cuongbtq/chat-relay/internal/domain"
)

type jobRow struct {
	JobID        string    `db:"job_id"`
	JobType      string    `db:"job_type"`
	Recipient    string    `db:"recipient"`
	Content      string    `db:"content"`
	MediaURL     string    `db:"media_url"`
	MediaType    string    `db:"media_type"`
	TemplateVars []byte    `db:"template_vars"`
	Status       string    `db:"status"`
	Priority     string    `db:"priority"`
	RetryCount   int       `db:"retry_count"`
	Attempts     int       `db:"attempts"`
	MaxAttempts  int       `db:"max_attempts"`
	ErrorMessage string    `db:"error_message"`
	ScheduledAt  time.Time `db:"scheduled_at"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

const jobColumns = `job_id, job_type, recipient, content, media_url, media_type, template_vars,
	status, priority, retry_count, attempts, max_attempts, error_message,
	scheduled_at, created_at, updated_at`

func (r jobRow) toDomain() (domain.Job, error) {
	job := domain.Job{
		ID:           r.JobID,
		Type:         domain.JobType(r.JobType),
		Recipient:    r.Recipient,
		Content:      r.Content,
		MediaURL:     r.MediaURL,
		MediaType:    r.MediaType,
		Status:       domain.JobStatus(r.Status),
		Priority:     domain.Priority(r.Priority),
		RetryCount:   r.RetryCount,
		Attempts:     r.Attempts,
		MaxAttempts:  r.MaxAttempts,
		ErrorMessage: r.ErrorMessage,
		ScheduledAt:  r.ScheduledAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if len(r.TemplateVars) > 0 {
		if err := json.Unmarshal(r.TemplateVars, &job.TemplateVars); err != nil {
			return domain.Job{}, err
		}
	}
	return job, nil
}

// templateVarsParam renders vars as JSON text for a JSONB column. lib/pq
// would send a []byte as bytea, so the value is passed as a string.
func templateVarsParam(vars map[string]string) (any, error) {
	if len(vars) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(vars)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type subscriptionRow struct {
	SubscriptionID string         `db:"subscription_id"`
	URL            string         `db:"url"`
	Secret         string         `db:"secret"`
	Events         pq.StringArray `db:"events"`
	IsActive       bool           `db:"is_active"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

const subscriptionColumns = `subscription_id, url, secret, events, is_active, created_at, updated_at`

func (r subscriptionRow) toDomain() domain.Subscription {
	return domain.Subscription{
		ID:        r.SubscriptionID,
		URL:       r.URL,
		Secret:    r.Secret,
		Events:    []string(r.Events),
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
