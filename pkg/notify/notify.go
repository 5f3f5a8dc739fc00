// Package notify provides the NotificationSink capability injected into
// the Scheduler (and called by cmd/poller once a meeting's pipeline run
// completes) for out-of-band side effects (spec §9
// design note: Discord/Notion are both modeled as one generic webhook
// sink rather than two bespoke clients), grounded on the teacher's
// pkg/slack/client.go + service.go — nil-safe service, fail-open
// send-and-log-on-error, constructed once at process start.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/smartmeet/notetaker/pkg/config"
)

// NotificationSink is the capability components depend on. Implementations
// must be fail-open: a delivery failure is logged, never surfaced as an
// error to the caller, since no notification should ever block the
// Scheduler/Supervisor pipeline it's reporting on.
type NotificationSink interface {
	MeetingStarted(ctx context.Context, meetingID, eventTitle string)
	MeetingEnded(ctx context.Context, meetingID string, ok bool, reason string)
	PipelineCompleted(ctx context.Context, meetingID string, inputCount int)
}

// WebhookSink posts a small JSON payload to a configured webhook URL.
// Nil-safe: every method is a no-op when the receiver is nil, matching
// the teacher's *Service nil-receiver convention so callers never need a
// "notify configured?" branch of their own.
type WebhookSink struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookSink returns a WebhookSink for cfg, or nil if notifications
// are disabled or no webhook URL is configured (same "construct once,
// nil when unconfigured" convention as the teacher's NewService).
func NewWebhookSink(cfg *config.NotifyConfig) *WebhookSink {
	if cfg == nil || !cfg.Enabled || cfg.WebhookURL == "" {
		return nil
	}
	return &WebhookSink{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: slog.Default().With("component", "notify"),
	}
}

type event struct {
	Type       string `json:"type"`
	MeetingID  string `json:"meeting_id"`
	EventTitle string `json:"event_title,omitempty"`
	OK         *bool  `json:"ok,omitempty"`
	Reason     string `json:"reason,omitempty"`
	InputCount *int   `json:"input_count,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// MeetingStarted reports that the Supervisor began a meeting attempt.
func (s *WebhookSink) MeetingStarted(ctx context.Context, meetingID, eventTitle string) {
	if s == nil {
		return
	}
	s.send(ctx, event{Type: "meeting_started", MeetingID: meetingID, EventTitle: eventTitle})
}

// MeetingEnded reports the Supervisor's terminal outcome for a meeting.
func (s *WebhookSink) MeetingEnded(ctx context.Context, meetingID string, ok bool, reason string) {
	if s == nil {
		return
	}
	s.send(ctx, event{Type: "meeting_ended", MeetingID: meetingID, OK: &ok, Reason: reason})
}

// PipelineCompleted reports that the transcript-to-input pipeline
// finished producing inputCount synthesized rows for meetingID.
func (s *WebhookSink) PipelineCompleted(ctx context.Context, meetingID string, inputCount int) {
	if s == nil {
		return
	}
	s.send(ctx, event{Type: "pipeline_completed", MeetingID: meetingID, InputCount: &inputCount})
}

func (s *WebhookSink) send(ctx context.Context, e event) {
	e.Timestamp = time.Now().UTC().Format(time.RFC3339)

	body, err := json.Marshal(e)
	if err != nil {
		s.logger.Error("failed to marshal notification event", "type", e.Type, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		s.logger.Error("failed to build notification request", "type", e.Type, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("failed to deliver notification", "type", e.Type, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.logger.Error("notification webhook returned non-2xx", "type", e.Type, "status", resp.StatusCode, "error", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}

var _ NotificationSink = (*WebhookSink)(nil)
