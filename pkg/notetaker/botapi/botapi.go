// Package botapi is the Notetaker Supervisor's external interface to the
// bot/Notetaker provider (spec §6): create a bot for a meeting URL, poll
// its status history, and fetch media/transcript links once it has
// recorded something.
package botapi

import (
	"context"
	"time"
)

// MeetingState is the provider-reported state of one Notetaker bot. The
// Supervisor classifies raw strings via the Is* helpers below rather than
// switching on an enum, matching the substring-tolerant classification in
// original_source/smartmeetos/notetaker/supervisor.py (`_is_waiting_room`,
// `_is_removed`, `_looks_ended`, `_looks_disconnected`) — bot providers are
// not consistent about exact casing or naming of these states.
type MeetingState string

// HistoryEvent is one entry in a Notetaker's status history, as returned
// by GetHistory.
type HistoryEvent struct {
	EventType    string       `json:"event_type"`
	MeetingState MeetingState `json:"meeting_state"`
	OccurredAt   time.Time    `json:"occurred_at"`
}

// MediaLink is a downloadable recording/transcript artifact for a
// Notetaker run.
type MediaLink struct {
	Kind string `json:"kind"` // "transcript", "audio", "video"
	URL  string `json:"url"`
}

// Provider is the capability the Notetaker Supervisor depends on.
// Implementations must tolerate transient errors from Create/GetHistory by
// returning them to the caller for retry; the Supervisor itself decides
// retry policy (spec §4.5).
type Provider interface {
	Create(ctx context.Context, meetingURL string) (botID string, err error)
	GetHistory(ctx context.Context, botID string) ([]HistoryEvent, error)
	GetMediaLinks(ctx context.Context, botID string) ([]MediaLink, error)
	FetchTranscript(ctx context.Context, link MediaLink) ([]byte, error)
}

func isWaitingRoom(ms MeetingState) bool {
	l := lower(string(ms))
	return l == "waiting_for_entry" || contains(l, "waiting")
}

func isActiveRecording(ms MeetingState) bool {
	return lower(string(ms)) == "recording_active"
}

func isFailedEntry(ms MeetingState) bool {
	switch lower(string(ms)) {
	case "failed_entry", "entry_denied", "no_response":
		return true
	}
	return false
}

func isEntryDenied(ms MeetingState) bool {
	return lower(string(ms)) == "entry_denied"
}

func isRemoved(eventType string, ms MeetingState) bool {
	return contains(lower(eventType), "removed") || contains(lower(eventType), "kicked") ||
		contains(lower(string(ms)), "removed") || contains(lower(string(ms)), "kicked")
}

func looksEnded(ms MeetingState) bool {
	l := lower(string(ms))
	switch l {
	case "meeting_ended", "recording_ended", "ended", "completed":
		return true
	}
	return hasSuffix(l, "_ended")
}

func looksDisconnected(ms MeetingState) bool {
	l := lower(string(ms))
	switch l {
	case "disconnected", "connection_lost":
		return true
	}
	return contains(l, "disconnect")
}

// Classify buckets a HistoryEvent into the coarse signals the Supervisor's
// state machine reasons about, exported so pkg/notetaker can stay free of
// string-matching details.
type Classification struct {
	WaitingRoom     bool
	ActiveRecording bool
	FailedEntry     bool
	EntryDenied     bool
	Removed         bool
	LooksEnded      bool
	LooksDisconnected bool
}

// Classify derives a Classification from one HistoryEvent.
func Classify(ev HistoryEvent) Classification {
	return Classification{
		WaitingRoom:       isWaitingRoom(ev.MeetingState),
		ActiveRecording:   isActiveRecording(ev.MeetingState),
		FailedEntry:       isFailedEntry(ev.MeetingState),
		EntryDenied:       isEntryDenied(ev.MeetingState),
		Removed:           isRemoved(ev.EventType, ev.MeetingState),
		LooksEnded:        looksEnded(ev.MeetingState),
		LooksDisconnected: looksDisconnected(ev.MeetingState),
	}
}
