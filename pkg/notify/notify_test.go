package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartmeet/notetaker/pkg/config"
)

func TestNewWebhookSinkReturnsNilWhenDisabledOrUnconfigured(t *testing.T) {
	assert.Nil(t, NewWebhookSink(nil))
	assert.Nil(t, NewWebhookSink(&config.NotifyConfig{Enabled: false, WebhookURL: "http://example.com"}))
	assert.Nil(t, NewWebhookSink(&config.NotifyConfig{Enabled: true, WebhookURL: ""}))
}

func TestWebhookSinkMethodsAreNoOpsOnNilReceiver(t *testing.T) {
	var s *WebhookSink
	assert.NotPanics(t, func() {
		s.MeetingStarted(context.Background(), "meeting-1", "Standup")
		s.MeetingEnded(context.Background(), "meeting-1", true, "")
		s.PipelineCompleted(context.Background(), "meeting-1", 3)
	})
}

func TestWebhookSinkPostsJSONPayload(t *testing.T) {
	received := make(chan map[string]any, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(&config.NotifyConfig{Enabled: true, WebhookURL: server.URL})
	require.NotNil(t, sink)

	sink.PipelineCompleted(context.Background(), "meeting-1", 5)

	select {
	case body := <-received:
		assert.Equal(t, "pipeline_completed", body["type"])
		assert.Equal(t, "meeting-1", body["meeting_id"])
		assert.Equal(t, float64(5), body["input_count"])
	default:
		t.Fatal("expected webhook to receive a payload")
	}
}

func TestWebhookSinkDoesNotPanicOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := NewWebhookSink(&config.NotifyConfig{Enabled: true, WebhookURL: server.URL})
	require.NotNil(t, sink)
	assert.NotPanics(t, func() {
		sink.MeetingEnded(context.Background(), "meeting-1", false, "join refused")
	})
}
