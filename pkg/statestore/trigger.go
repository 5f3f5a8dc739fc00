package statestore

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/smartmeet/notetaker/pkg/models"
)

// TriggerStore persists one TriggerRecord per (event ID, start instant)
// occurrence under dir, so the Scheduler never dispatches the same
// occurrence twice even across process restarts, and a recurring event's
// distinct occurrences never collide with one another (spec §4.2).
type TriggerStore struct {
	dir string
}

// NewTriggerStore returns a store that keeps one file per occurrence under dir.
func NewTriggerStore(dir string) *TriggerStore {
	return &TriggerStore{dir: dir}
}

func occurrenceToken(eventStart time.Time) string {
	return strings.ReplaceAll(eventStart.UTC().Format(time.RFC3339), ":", "-")
}

func (s *TriggerStore) pathFor(eventID string, eventStart time.Time) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s__%s.trigger.json", eventID, occurrenceToken(eventStart)))
}

// WasTriggered reports whether (eventID, eventStart) already has a
// TriggerRecord on disk.
func (s *TriggerStore) WasTriggered(eventID string, eventStart time.Time) (bool, error) {
	var rec models.TriggerRecord
	err := readJSON(s.pathFor(eventID, eventStart), &rec)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkTriggered records that (eventID, eventStart) has been dispatched, as
// of now.
func (s *TriggerStore) MarkTriggered(eventID string, eventStart, now time.Time) error {
	rec := models.TriggerRecord{EventID: eventID, EventStart: eventStart, TriggeredAt: now}
	return writeJSONAtomic(s.pathFor(eventID, eventStart), rec)
}

// Get returns the TriggerRecord for (eventID, eventStart), or nil if none exists.
func (s *TriggerStore) Get(eventID string, eventStart time.Time) (*models.TriggerRecord, error) {
	var rec models.TriggerRecord
	err := readJSON(s.pathFor(eventID, eventStart), &rec)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
