package domain

import "time"

// EventWildcard subscribes to every event.
const EventWildcard = "*"

// Event names emitted by the relay.
const (
	EventMessageReceived = "message.received"
	EventJobCompleted    = "job.completed"
	EventJobFailed       = "job.failed"
	EventWebhookTest     = "webhook.test"
)

// Subscription is a registered webhook endpoint. Unregistering flips
// IsActive; rows are never hard-deleted.
type Subscription struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Events    []string  `json:"events"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subscribes reports whether the subscription wants event.
func (s Subscription) Subscribes(event string) bool {
	for _, e := range s.Events {
		if e == event || e == EventWildcard {
			return true
		}
	}
	return false
}
