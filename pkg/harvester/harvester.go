// Package harvester persists transcript and recording media for a
// supervised meeting once the Notetaker has produced any, grounded on
// original_source/smartmeetos/notetaker/supervisor.py's
// save_transcript_if_available/_try_save_transcripts/
// _wait_for_transcripts_post_end: persist as soon as available, never
// overwrite an existing file, and keep one file per Notetaker attempt so a
// rejoin's bot never clobbers a previous one's output.
package harvester

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/smartmeet/notetaker/pkg/models"
	"github.com/smartmeet/notetaker/pkg/notetaker/botapi"
	"github.com/smartmeet/notetaker/pkg/statestore"
)

// Harvester fetches media links for finished Notetaker attempts and writes
// their metadata and transcript content to disk.
type Harvester struct {
	bot     botapi.Provider
	history *statestore.RunResultStore
	dir     string
	log     *slog.Logger
}

// New returns a Harvester that writes under dir.
func New(bot botapi.Provider, history *statestore.RunResultStore, dir string, log *slog.Logger) *Harvester {
	if log == nil {
		log = slog.Default()
	}
	return &Harvester{bot: bot, history: history, dir: dir, log: log.With("component", "harvester")}
}

func (h *Harvester) token(event models.Event) string {
	return event.StartUTC.UTC().Format("20060102T150405Z")
}

func (h *Harvester) metaPath(event models.Event, notetakerID string) string {
	return fmt.Sprintf("%s/%s__%s__%s.media.json", h.dir, event.EventID, h.token(event), notetakerID)
}

func (h *Harvester) transcriptPath(event models.Event, notetakerID string) string {
	return fmt.Sprintf("%s/%s__%s__%s.transcript.json", h.dir, event.EventID, h.token(event), notetakerID)
}

// SaveIfAvailable fetches media links for one Notetaker attempt and writes
// its metadata (always, once) and transcript content (best-effort, once) if
// a transcript link is present. It returns "" with no error when nothing is
// available yet — this is not a failure, just "try again later".
func (h *Harvester) SaveIfAvailable(ctx context.Context, event models.Event, notetakerID string) (string, error) {
	links, err := h.bot.GetMediaLinks(ctx, notetakerID)
	if err != nil {
		return "", nil
	}

	var transcript *botapi.MediaLink
	for i := range links {
		if links[i].Kind == "transcript" {
			transcript = &links[i]
			break
		}
	}
	if transcript == nil || transcript.URL == "" {
		return "", nil
	}

	metaPath := h.metaPath(event, notetakerID)
	if _, err := statestore.WriteJSONIfAbsent(metaPath, map[string]any{
		"event_id":        event.EventID,
		"event_start_utc": event.StartUTC,
		"notetaker_id":    notetakerID,
		"media":           links,
	}); err != nil {
		h.log.Warn("failed to write transcript metadata", "event_id", event.EventID, "notetaker_id", notetakerID, "error", err)
	}

	transcriptPath := h.transcriptPath(event, notetakerID)
	if content, err := h.bot.FetchTranscript(ctx, *transcript); err == nil {
		if _, err := statestore.WriteFileIfAbsent(transcriptPath, content); err != nil {
			h.log.Warn("failed to write transcript content", "event_id", event.EventID, "notetaker_id", notetakerID, "error", err)
		} else {
			return transcriptPath, nil
		}
	}
	return metaPath, nil
}

// SaveAll tries SaveIfAvailable for every notetaker ID, skipping (not
// failing) any attempt whose media isn't available or fails to save.
func (h *Harvester) SaveAll(ctx context.Context, event models.Event, notetakerIDs []string) []string {
	var saved []string
	for _, id := range notetakerIDs {
		if id == "" {
			continue
		}
		path, err := h.SaveIfAvailable(ctx, event, id)
		if err != nil || path == "" {
			continue
		}
		saved = append(saved, path)
	}
	return saved
}

// WaitAndSave polls SaveAll every pollInterval until it saves something or
// wait elapses, appending audit entries to the meeting's JSONL history. It
// is meant to run in its own goroutine, kicked off by the Supervisor once a
// meeting finalizes with HadRecording true, matching the original's
// daemon-thread post-end transcript wait.
func (h *Harvester) WaitAndSave(ctx context.Context, event models.Event, notetakerIDs []string, wait, pollInterval time.Duration) {
	if wait <= 0 || len(notetakerIDs) == 0 {
		return
	}
	token := h.token(event)
	_ = h.history.AppendHistory(event.EventID, token, map[string]any{
		"event":         "post_end_transcript_wait_start",
		"at":            time.Now().UTC(),
		"wait_seconds":  wait.Seconds(),
		"poll_seconds":  pollInterval.Seconds(),
		"notetaker_ids": notetakerIDs,
	})

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		if saved := h.SaveAll(ctx, event, notetakerIDs); len(saved) > 0 {
			_ = h.history.AppendHistory(event.EventID, token, map[string]any{
				"event":       "post_end_transcript_saved",
				"at":          time.Now().UTC(),
				"saved_paths": saved,
			})
			return
		}
		t := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
	_ = h.history.AppendHistory(event.EventID, token, map[string]any{
		"event": "post_end_transcript_wait_timeout",
		"at":    time.Now().UTC(),
	})
}
