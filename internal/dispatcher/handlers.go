package dispatcher

import (
	"context"
	"time"

	"github.com/cuongbtq/chat-relay/internal/domain"
)

// SendCommand is the wire form of one outbound chat action handed to a backend.
type SendCommand struct {
	JobID        string            `json:"job_id"`
	Type         domain.JobType    `json:"type"`
	Recipient    string            `json:"recipient"`
	Content      string            `json:"content,omitempty"`
	MediaURL     string            `json:"media_url,omitempty"`
	MediaType    string            `json:"media_type,omitempty"`
	TemplateName string            `json:"template_name,omitempty"`
	TemplateVars map[string]string `json:"template_vars,omitempty"`
	Attempt      int               `json:"attempt"`
}

// Backend talks to the chat automation collaborator. Send must honor ctx and
// return an error rather than hang.
type Backend interface {
	Name() string
	Send(ctx context.Context, cmd SendCommand) (externalID string, err error)
}

// RegisterSendHandlers binds every job type to backend.
func RegisterSendHandlers(d *Dispatcher, backend Backend) {
	d.Register(domain.JobSendText, sendWith(backend, func(job domain.Job, cmd *SendCommand) {
		cmd.Content = job.Content
	}))
	d.Register(domain.JobSendMedia, sendWith(backend, func(job domain.Job, cmd *SendCommand) {
		cmd.MediaURL = job.MediaURL
		cmd.MediaType = job.MediaType
	}))
	d.Register(domain.JobSendTemplate, sendWith(backend, func(job domain.Job, cmd *SendCommand) {
		cmd.TemplateName = job.Content
		cmd.TemplateVars = job.TemplateVars
	}))
}

func sendWith(backend Backend, fill func(domain.Job, *SendCommand)) Handler {
	return func(ctx context.Context, job domain.Job) (*domain.DeliveryResult, error) {
		cmd := SendCommand{
			JobID:     job.ID,
			Type:      job.Type,
			Recipient: job.Recipient,
			Attempt:   job.Attempts,
		}
		fill(job, &cmd)

		externalID, err := backend.Send(ctx, cmd)
		if err != nil {
			return nil, err
		}
		return &domain.DeliveryResult{
			ExternalID:  externalID,
			Backend:     backend.Name(),
			DeliveredAt: time.Now(),
		}, nil
	}
}
