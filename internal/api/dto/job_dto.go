package dto

import (
	"time"

	"github.com/cuongbtq/chat-relay/internal/domain"
	"github.com/cuongbtq/chat-relay/internal/storage"
)

type CreateJobRequest struct {
	Type         string            `json:"type" binding:"required"`
	Recipient    string            `json:"recipient"`
	Content      string            `json:"content"`
	MediaURL     string            `json:"media_url"`
	MediaType    string            `json:"media_type"`
	TemplateVars map[string]string `json:"template_vars"`
	Priority     string            `json:"priority"`
}

func (r CreateJobRequest) ToSpec() domain.JobSpec {
	return domain.JobSpec{
		Type:         r.Type,
		Recipient:    r.Recipient,
		Content:      r.Content,
		MediaURL:     r.MediaURL,
		MediaType:    r.MediaType,
		TemplateVars: r.TemplateVars,
		Priority:     r.Priority,
	}
}

type CreateJobResponse struct {
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

type ListJobsRequest struct {
	Status    string `form:"status"`
	Type      string `form:"type"`
	Recipient string `form:"recipient"`
	Page      int    `form:"page"`
	Limit     int    `form:"limit"`
}

type ListJobsResponse struct {
	Items      []domain.Job       `json:"items"`
	Pagination storage.Pagination `json:"pagination"`
}

type JobActionResponse struct {
	JobID     string `json:"job_id"`
	Succeeded bool   `json:"succeeded"`
	Status    string `json:"status,omitempty"`
}

type CleanupRequest struct {
	OlderThan string `json:"older_than" binding:"required"`
	Status    string `json:"status" binding:"required"`
}

type CleanupResponse struct {
	Removed int `json:"removed"`
}

type QueueStateResponse struct {
	Paused bool `json:"paused"`
}
