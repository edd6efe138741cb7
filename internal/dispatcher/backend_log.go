package dispatcher

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogBackend is a dry-run sender for local development: it logs the command
// and reports success.
type LogBackend struct {
	logger *slog.Logger
}

func NewLogBackend(logger *slog.Logger) *LogBackend {
	return &LogBackend{logger: logger}
}

func (b *LogBackend) Name() string { return "log" }

func (b *LogBackend) Send(ctx context.Context, cmd SendCommand) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	b.logger.Info("Dry-run send",
		slog.String("job_id", cmd.JobID),
		slog.String("job_type", string(cmd.Type)),
		slog.String("recipient", cmd.Recipient),
		slog.String("content", cmd.Content),
		slog.String("media_url", cmd.MediaURL),
		slog.String("template", cmd.TemplateName),
		slog.String("message_id", id),
	)
	return id, nil
}
