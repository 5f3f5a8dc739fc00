package harvester

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartmeet/notetaker/pkg/models"
	"github.com/smartmeet/notetaker/pkg/notetaker/botapi"
	"github.com/smartmeet/notetaker/pkg/statestore"
)

type fakeBot struct {
	media       map[string][]botapi.MediaLink
	transcripts map[string][]byte
	fetchErr    error
}

func (f *fakeBot) Create(ctx context.Context, meetingURL string) (string, error) { return "", nil }

func (f *fakeBot) GetHistory(ctx context.Context, botID string) ([]botapi.HistoryEvent, error) {
	return nil, nil
}

func (f *fakeBot) GetMediaLinks(ctx context.Context, botID string) ([]botapi.MediaLink, error) {
	return f.media[botID], nil
}

func (f *fakeBot) FetchTranscript(ctx context.Context, link botapi.MediaLink) ([]byte, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.transcripts[link.URL], nil
}

func TestSaveIfAvailableWritesMetaAndTranscriptOnce(t *testing.T) {
	event := models.Event{EventID: "evt-1", StartUTC: time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)}
	bot := &fakeBot{
		media: map[string][]botapi.MediaLink{
			"bot-1": {{Kind: "transcript", URL: "https://example.test/t.json"}},
		},
		transcripts: map[string][]byte{"https://example.test/t.json": []byte(`{"text":"hello"}`)},
	}
	dir := t.TempDir()
	h := New(bot, statestore.NewRunResultStore(dir), dir, nil)

	path, err := h.SaveIfAvailable(context.Background(), event, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, h.transcriptPath(event, "bot-1"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"text":"hello"}`, string(data))
	assert.FileExists(t, h.metaPath(event, "bot-1"))

	bot.transcripts["https://example.test/t.json"] = []byte("should not overwrite")
	path2, err := h.SaveIfAvailable(context.Background(), event, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, path, path2)
	data2, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"text":"hello"}`, string(data2))
}

func TestSaveIfAvailableReturnsEmptyWhenNoTranscriptYet(t *testing.T) {
	event := models.Event{EventID: "evt-2", StartUTC: time.Now().UTC()}
	bot := &fakeBot{media: map[string][]botapi.MediaLink{"bot-1": nil}}
	dir := t.TempDir()
	h := New(bot, statestore.NewRunResultStore(dir), dir, nil)

	path, err := h.SaveIfAvailable(context.Background(), event, "bot-1")
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestWaitAndSaveStopsOnceSaved(t *testing.T) {
	event := models.Event{EventID: "evt-3", StartUTC: time.Now().UTC()}
	bot := &fakeBot{
		media: map[string][]botapi.MediaLink{
			"bot-1": {{Kind: "transcript", URL: "https://example.test/t.json"}},
		},
		transcripts: map[string][]byte{"https://example.test/t.json": []byte("content")},
	}
	dir := t.TempDir()
	store := statestore.NewRunResultStore(dir)
	h := New(bot, store, dir, nil)

	h.WaitAndSave(context.Background(), event, []string{"bot-1"}, time.Second, time.Millisecond)

	assert.FileExists(t, h.transcriptPath(event, "bot-1"))
	entries, err := os.ReadFile(filepath.Join(dir, event.EventID+"__"+h.token(event)+".history.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(entries), "post_end_transcript_saved")
}
