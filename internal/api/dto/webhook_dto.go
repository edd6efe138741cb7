package dto

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/chat-relay/internal/domain"
)

type RegisterWebhookRequest struct {
	URL    string   `json:"url" binding:"required,url"`
	Secret string   `json:"secret"`
	Events []string `json:"events" binding:"required,min=1,dive,required"`
}

// WebhookDTO exposes whether a secret is set, never the secret itself.
type WebhookDTO struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	IsActive  bool      `json:"is_active"`
	Signed    bool      `json:"signed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewWebhookDTO(sub domain.Subscription) WebhookDTO {
	return WebhookDTO{
		ID:        sub.ID,
		URL:       sub.URL,
		Events:    sub.Events,
		IsActive:  sub.IsActive,
		Signed:    sub.Secret != "",
		CreatedAt: sub.CreatedAt,
		UpdatedAt: sub.UpdatedAt,
	}
}

type TestWebhookRequest struct {
	Data json.RawMessage `json:"data"`
}

type TestWebhookResponse struct {
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}
