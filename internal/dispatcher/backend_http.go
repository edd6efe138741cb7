package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPBackend posts send commands to the automation bridge.
type HTTPBackend struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPBackend targets baseURL + "/send".
func NewHTTPBackend(baseURL, apiKey string, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{
		endpoint: strings.TrimRight(baseURL, "/") + "/send",
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

func (b *HTTPBackend) Name() string { return "http" }

type bridgeResponse struct {
	MessageID string `json:"message_id"`
}

func (b *HTTPBackend) Send(ctx context.Context, cmd SendCommand) (string, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return "", fmt.Errorf("failed to marshal send command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build bridge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", cmd.JobID)
	if b.apiKey != "" {
		req.Header.Set("X-API-Key", b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("bridge request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("bridge returned status %d: %s", resp.StatusCode, truncate(string(payload), 256))
	}

	var parsed bridgeResponse
	if len(payload) > 0 {
		// Body is optional; an unparseable one still counts as delivered.
		_ = json.Unmarshal(payload, &parsed)
	}
	return parsed.MessageID, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
