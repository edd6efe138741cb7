package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobSpec_Validate(t *testing.T) {
	tests := []struct {
		name             string
		spec             JobSpec
		expectError      bool
		errField         string
		expectedType     JobType
		expectedPriority Priority
	}{
		{
			name:             "text with high priority",
			spec:             JobSpec{Type: "send_text", Recipient: "+15551234567", Content: "hi", Priority: "high"},
			expectedType:     JobSendText,
			expectedPriority: PriorityHigh,
		},
		{
			name:             "text without media defaults to normal",
			spec:             JobSpec{Type: "send_text", Recipient: "+15551234567", Content: "hi"},
			expectedType:     JobSendText,
			expectedPriority: PriorityNormal,
		},
		{
			name:             "media with type",
			spec:             JobSpec{Type: "send_media", Recipient: "+1", MediaURL: "https://x/a.png", MediaType: "image", Priority: "low"},
			expectedType:     JobSendMedia,
			expectedPriority: PriorityLow,
		},
		{
			name:             "template with vars",
			spec:             JobSpec{Type: "send_template", Recipient: "+1", Content: "welcome", TemplateVars: map[string]string{"name": "Ana"}},
			expectedType:     JobSendTemplate,
			expectedPriority: PriorityNormal,
		},
		{
			name:        "media url without media type",
			spec:        JobSpec{Type: "send_media", Recipient: "+1", MediaURL: "https://x/a.png"},
			expectError: true,
			errField:    "media_type",
		},
		{
			name:        "media type without media url",
			spec:        JobSpec{Type: "send_text", Recipient: "+1", Content: "hi", MediaType: "image"},
			expectError: true,
			errField:    "media_url",
		},
		{
			name:        "neither content nor media",
			spec:        JobSpec{Type: "send_text", Recipient: "+1"},
			expectError: true,
			errField:    "content",
		},
		{
			name:        "content and media together",
			spec:        JobSpec{Type: "send_media", Recipient: "+1", Content: "hi", MediaURL: "https://x/a.png", MediaType: "image"},
			expectError: true,
			errField:    "content",
		},
		{
			name:        "unknown type",
			spec:        JobSpec{Type: "send_fax", Recipient: "+1", Content: "hi"},
			expectError: true,
			errField:    "type",
		},
		{
			name:        "blank recipient",
			spec:        JobSpec{Type: "send_text", Recipient: "  ", Content: "hi"},
			expectError: true,
			errField:    "recipient",
		},
		{
			name:        "send_media with content only",
			spec:        JobSpec{Type: "send_media", Recipient: "+1", Content: "hi"},
			expectError: true,
			errField:    "media_url",
		},
		{
			name:        "send_text with media only",
			spec:        JobSpec{Type: "send_text", Recipient: "+1", MediaURL: "https://x/a.png", MediaType: "image"},
			expectError: true,
			errField:    "content",
		},
		{
			name:        "template vars on text",
			spec:        JobSpec{Type: "send_text", Recipient: "+1", Content: "hi", TemplateVars: map[string]string{"a": "b"}},
			expectError: true,
			errField:    "template_vars",
		},
		{
			name:        "unknown priority",
			spec:        JobSpec{Type: "send_text", Recipient: "+1", Content: "hi", Priority: "urgent"},
			expectError: true,
			errField:    "priority",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobType, priority, err := tt.spec.Validate()

			if tt.expectError {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidJobSpec))

				var vErr *ValidationError
				require.True(t, errors.As(err, &vErr))
				assert.Equal(t, tt.errField, vErr.Field)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectedType, jobType)
			assert.Equal(t, tt.expectedPriority, priority)
		})
	}
}

func TestCanTransition(t *testing.T) {
	allowed := map[JobStatus][]JobStatus{
		JobStatusPending:    {JobStatusProcessing, JobStatusCancelled},
		JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
		JobStatusFailed:     {JobStatusPending},
	}

	for _, from := range JobStatuses() {
		for _, to := range JobStatuses() {
			expected := false
			for _, s := range allowed[from] {
				if s == to {
					expected = true
				}
			}
			assert.Equal(t, expected, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestPriority_Weight(t *testing.T) {
	assert.Greater(t, PriorityHigh.Weight(), PriorityNormal.Weight())
	assert.Greater(t, PriorityNormal.Weight(), PriorityLow.Weight())
	assert.Equal(t, PriorityNormal.Weight(), Priority("").Weight())
}

func TestJob_Clone(t *testing.T) {
	job := Job{ID: "a", TemplateVars: map[string]string{"k": "v"}}

	clone := job.Clone()
	clone.TemplateVars["k"] = "changed"

	assert.Equal(t, "v", job.TemplateVars["k"])
}

func TestSubscription_Subscribes(t *testing.T) {
	tests := []struct {
		name     string
		events   []string
		event    string
		expected bool
	}{
		{name: "exact match", events: []string{EventJobCompleted, EventJobFailed}, event: EventJobFailed, expected: true},
		{name: "no match", events: []string{EventJobCompleted}, event: EventMessageReceived, expected: false},
		{name: "wildcard", events: []string{EventWildcard}, event: EventMessageReceived, expected: true},
		{name: "empty", events: nil, event: EventJobCompleted, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := Subscription{Events: tt.events}
			assert.Equal(t, tt.expected, sub.Subscribes(tt.event))
		})
	}
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("bridge unreachable")
	dErr := &DeliveryError{JobID: "j1", JobType: JobSendText, Attempt: 2, Err: cause}

	assert.True(t, errors.Is(dErr, ErrDelivery))
	assert.True(t, errors.Is(dErr, cause))
	assert.Contains(t, dErr.Error(), "attempt 2")

	sErr := &StateError{JobID: "j1", Status: JobStatusCompleted, Operation: "retry"}
	assert.True(t, errors.Is(sErr, ErrInvalidState))
	assert.Equal(t, "cannot retry job j1 in status completed", sErr.Error())

	assert.True(t, errors.Is(NotFoundError("job", "j1"), ErrNotFound))
}
