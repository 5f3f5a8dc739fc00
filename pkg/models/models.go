// Package models contains the data types shared across the meeting
// intelligence pipeline: calendar events, scheduler bookkeeping, Notetaker
// run results, and the transcript-to-input pipeline's relational records.
package models

import "time"

// FailureCode is the closed taxonomy of terminal Notetaker outcomes. A
// MeetingRunResult with FailureCode == "" and OK == true succeeded.
type FailureCode string

const (
	FailureNone                   FailureCode = ""
	FailureJoinRefusedMax         FailureCode = "JOIN_REFUSED_MAX"
	FailureKickedMax              FailureCode = "KICKED_MAX"
	FailureMaxDurationExceeded    FailureCode = "MAX_DURATION_EXCEEDED"
	FailureSkippedOverlapConflict FailureCode = "SKIPPED_OVERLAP_CONFLICT"
	FailureBotCreateFailed        FailureCode = "BOT_CREATE_FAILED"
)

// Event is a calendar event as returned by the Calendar Poller.
type Event struct {
	EventID      string
	Summary      string
	StartUTC     time.Time
	EndUTC       time.Time
	MeetURL      string
	OrganizerID  string
	CalendarID   string
	LastModified time.Time
}

// TriggerRecord tracks whether an event has already been triggered, so the
// Scheduler does not dispatch a Notetaker twice for the same event.
type TriggerRecord struct {
	EventID     string    `json:"event_id"`
	EventStart  time.Time `json:"event_start_utc"`
	TriggeredAt time.Time `json:"triggered_at_utc"`
}

// ActiveLock reflects the single meeting (if any) currently owning the
// Notetaker. It is owned exclusively by the Scheduler/Supervisor pair; no
// other component writes it.
type ActiveLock struct {
	EventID      string    `json:"event_id"`
	EventStart   time.Time `json:"event_start_utc"`
	ExpiresAtUTC time.Time `json:"expires_at_utc"`
}

// MeetingRunResult is the terminal record of one Notetaker supervision run.
type MeetingRunResult struct {
	EventID       string      `json:"event_id"`
	EventStartUTC time.Time   `json:"event_start_utc"`
	OK            bool        `json:"ok"`
	FailureCode   FailureCode `json:"failure_code,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	NotetakerIDs  []string    `json:"notetaker_ids,omitempty"`
	HadRecording  bool        `json:"had_recording"`
	DeniedCount   int         `json:"denied_count"`
	KickedCount   int         `json:"kicked_count"`
	StartedAtUTC  time.Time   `json:"started_at_utc"`
	EndedAtUTC    time.Time   `json:"ended_at_utc"`
}

// TranscriptChunk is one piece of a smart-chunked transcript, owned by the
// Transcript-to-Input pipeline and persisted relationally.
type TranscriptChunk struct {
	ID           string    `json:"id"`
	MeetingID    string    `json:"meeting_id"`
	ChunkIndex   int       `json:"chunk_index"`
	Speaker      string    `json:"speaker,omitempty"`
	ChunkContent string    `json:"chunk_content"`
	Source       string    `json:"source,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// FactType is the closed enum of extractable fact categories. Keep in sync
// across pkg/extractor and the storage layer.
type FactType string

const (
	FactStatement     FactType = "statement"
	FactProposal      FactType = "proposal"
	FactQuestion      FactType = "question"
	FactDecision      FactType = "decision"
	FactAction        FactType = "action"
	FactConstraint    FactType = "constraint"
	FactAgreement     FactType = "agreement"
	FactDisagreement  FactType = "disagreement"
	FactClarification FactType = "clarification"
	FactCondition     FactType = "condition"
	FactReminder      FactType = "reminder"
)

// FactTypeValues enumerates every valid FactType, in the order the
// extraction prompt presents them.
var FactTypeValues = []FactType{
	FactStatement, FactProposal, FactQuestion, FactDecision, FactAction,
	FactConstraint, FactAgreement, FactDisagreement, FactClarification,
	FactCondition, FactReminder,
}

// IsValid reports whether ft is one of FactTypeValues.
func (ft FactType) IsValid() bool {
	for _, v := range FactTypeValues {
		if v == ft {
			return true
		}
	}
	return false
}

// ExtractedFact is one atomic fact pulled from a TranscriptChunk by the
// Chunk Extractor Node, later labeled by the Grouping Node.
type ExtractedFact struct {
	ID            string    `json:"id"`
	MeetingID     string    `json:"meeting_id"`
	SourceChunkID string    `json:"source_chunk_id"`
	Speaker       string    `json:"speaker,omitempty"`
	FactType      FactType  `json:"fact_type"`
	FactContent   string    `json:"fact_content"`
	SourceQuote   string    `json:"source_quote,omitempty"`
	Certainty     int       `json:"certainty"`
	GroupLabel    *string   `json:"group_label,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Input is the final synthesized output of one group of facts, produced by
// the Aggregator Node and handed to downstream publishers.
type Input struct {
	ID           string    `json:"id"`
	MeetingID    string    `json:"meeting_id"`
	GroupLabel   string    `json:"group_label"`
	InputContent string    `json:"input_content"`
	CreatedAt    time.Time `json:"created_at"`
}
