package statestore

import (
	"fmt"
	"path/filepath"

	"github.com/smartmeet/notetaker/pkg/models"
)

// RunResultStore persists the terminal MeetingRunResult for each
// supervised meeting, plus its JSONL supervisor history, under dir.
type RunResultStore struct {
	dir string
}

// NewRunResultStore returns a store rooted at dir.
func NewRunResultStore(dir string) *RunResultStore {
	return &RunResultStore{dir: dir}
}

func fileToken(eventID, eventStart string) string {
	return fmt.Sprintf("%s__%s", eventID, eventStart)
}

func (s *RunResultStore) resultPath(eventID, eventStart string) string {
	return filepath.Join(s.dir, fileToken(eventID, eventStart)+".result.json")
}

func (s *RunResultStore) historyPath(eventID, eventStart string) string {
	return filepath.Join(s.dir, fileToken(eventID, eventStart)+".history.jsonl")
}

// Save writes the final result for one supervision run.
func (s *RunResultStore) Save(result models.MeetingRunResult) error {
	token := result.EventStartUTC.UTC().Format("20060102T150405Z")
	return writeJSONAtomic(s.resultPath(result.EventID, token), result)
}

// Get looks up a previously saved MeetingRunResult.
func (s *RunResultStore) Get(eventID, eventStartToken string) (*models.MeetingRunResult, error) {
	var res models.MeetingRunResult
	err := readJSON(s.resultPath(eventID, eventStartToken), &res)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// AppendHistory appends one audit-log event to a meeting's JSONL history.
// History entries are free-form maps: the supervisor logs join attempts,
// status polls, rejoins, and the terminal outcome as they happen.
func (s *RunResultStore) AppendHistory(eventID, eventStartToken string, entry map[string]any) error {
	return appendJSONL(s.historyPath(eventID, eventStartToken), entry)
}
