package notetaker

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartmeet/notetaker/pkg/config"
	"github.com/smartmeet/notetaker/pkg/models"
	"github.com/smartmeet/notetaker/pkg/notetaker/botapi"
	"github.com/smartmeet/notetaker/pkg/statestore"
)

// fakeBot is a scripted botapi.Provider: each Create call returns the next
// bot ID in ids (or errs if exhausted), and GetHistory/GetMediaLinks serve
// from per-bot queues that the test pre-loads.
type fakeBot struct {
	mu        sync.Mutex
	ids       []string
	createErr error
	history   map[string][][]botapi.HistoryEvent
	media     map[string][]botapi.MediaLink
}

func (f *fakeBot) Create(ctx context.Context, meetingURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	if len(f.ids) == 0 {
		return "", assertErr{"no more bot ids scripted"}
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}

func (f *fakeBot) GetHistory(ctx context.Context, botID string) ([]botapi.HistoryEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	queue := f.history[botID]
	if len(queue) == 0 {
		return nil, nil
	}
	next := queue[0]
	if len(queue) > 1 {
		f.history[botID] = queue[1:]
	}
	return next, nil
}

func (f *fakeBot) GetMediaLinks(ctx context.Context, botID string) ([]botapi.MediaLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.media[botID], nil
}

func (f *fakeBot) FetchTranscript(ctx context.Context, link botapi.MediaLink) ([]byte, error) {
	return []byte("transcript"), nil
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func fastConfig() *config.SupervisorConfig {
	cfg := config.DefaultSupervisorConfig()
	cfg.StatusPoll = time.Millisecond
	cfg.ReconnectAttemptInterval = time.Millisecond
	cfg.WaitingRoomTimeout = 10 * time.Millisecond
	cfg.JoinRetryMin = time.Millisecond
	cfg.JoinRetryMax = 2 * time.Millisecond
	return cfg
}

func TestSupervisorSucceedsOnTwoEndSignals(t *testing.T) {
	now := time.Now().UTC()
	event := models.Event{
		EventID:  "evt-1",
		MeetURL:  "https://meet.google.com/abc-defg-hij",
		StartUTC: now.Add(-time.Minute),
		EndUTC:   now.Add(time.Minute),
	}

	bot := &fakeBot{
		ids: []string{"bot-1"},
		history: map[string][][]botapi.HistoryEvent{
			"bot-1": {
				{{EventType: "status", MeetingState: "recording_active"}},
				{{EventType: "status", MeetingState: "meeting_ended"}},
			},
		},
		media: map[string][]botapi.MediaLink{
			"bot-1": {{Kind: "transcript", URL: "https://example.test/t.json"}},
		},
	}

	dir := t.TempDir()
	store := statestore.NewRunResultStore(dir)
	sup := New(fastConfig(), bot, store, nil, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result := sup.Supervise(ctx, event)
	require.True(t, result.OK)
	assert.True(t, result.HadRecording)
	assert.Equal(t, []string{"bot-1"}, result.NotetakerIDs)
	assert.Contains(t, result.Reason, "end signals")
}

func TestSupervisorMaxDurationExceededWhileStuckRecording(t *testing.T) {
	now := time.Now().UTC()
	event := models.Event{
		EventID:  "evt-stuck",
		MeetURL:  "https://meet.google.com/abc-defg-hij",
		StartUTC: now.Add(-time.Minute),
		EndUTC:   now.Add(50 * time.Millisecond),
	}

	bot := &fakeBot{
		ids: []string{"bot-1"},
		history: map[string][][]botapi.HistoryEvent{
			"bot-1": {{{EventType: "status", MeetingState: "recording_active"}}},
		},
	}

	cfg := fastConfig()
	cfg.MaxOverrun = 50 * time.Millisecond
	cfg.EventEndGrace = time.Hour

	dir := t.TempDir()
	store := statestore.NewRunResultStore(dir)
	sup := New(cfg, bot, store, nil, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result := sup.Supervise(ctx, event)
	require.False(t, result.OK)
	assert.Equal(t, models.FailureMaxDurationExceeded, result.FailureCode)
	assert.True(t, result.HadRecording)
}

func TestSupervisorGivesUpAfterMaxEntryDenials(t *testing.T) {
	now := time.Now().UTC()
	event := models.Event{
		EventID:  "evt-2",
		MeetURL:  "https://meet.google.com/abc-defg-hij",
		StartUTC: now.Add(-time.Minute),
		EndUTC:   now.Add(time.Minute),
	}

	bot := &fakeBot{
		ids: []string{"bot-1", "bot-2", "bot-3"},
		history: map[string][][]botapi.HistoryEvent{
			"bot-1": {{{EventType: "status", MeetingState: "entry_denied"}}},
			"bot-2": {{{EventType: "status", MeetingState: "entry_denied"}}},
			"bot-3": {{{EventType: "status", MeetingState: "entry_denied"}}},
		},
	}

	cfg := fastConfig()
	cfg.MaxEntryDenials = 3

	dir := t.TempDir()
	store := statestore.NewRunResultStore(dir)
	sup := New(cfg, bot, store, nil, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result := sup.Supervise(ctx, event)
	require.False(t, result.OK)
	assert.Equal(t, models.FailureJoinRefusedMax, result.FailureCode)
	assert.Equal(t, 3, result.DeniedCount)
}

func TestSupervisorHarvestsOnlyWhenRecordingOccurred(t *testing.T) {
	now := time.Now().UTC()
	event := models.Event{
		EventID:  "evt-3",
		MeetURL:  "https://meet.google.com/abc-defg-hij",
		StartUTC: now.Add(-time.Minute),
		EndUTC:   now.Add(time.Minute),
	}

	bot := &fakeBot{
		ids: []string{"bot-1"},
		history: map[string][][]botapi.HistoryEvent{
			"bot-1": {
				{{EventType: "status", MeetingState: "recording_active"}},
				{{EventType: "status", MeetingState: "meeting_ended"}},
			},
		},
		media: map[string][]botapi.MediaLink{
			"bot-1": {{Kind: "transcript", URL: "https://example.test/t.json"}},
		},
	}

	var harvested bool
	var mu sync.Mutex
	done := make(chan struct{})
	harvest := func(ctx context.Context, ev models.Event, ids []string) {
		mu.Lock()
		harvested = true
		mu.Unlock()
		close(done)
	}

	dir := t.TempDir()
	store := statestore.NewRunResultStore(dir)
	sup := New(fastConfig(), bot, store, harvest, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result := sup.Supervise(ctx, event)
	require.True(t, result.OK)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("harvest callback was not invoked")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, harvested)
}
