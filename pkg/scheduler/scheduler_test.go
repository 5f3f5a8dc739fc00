package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartmeet/notetaker/pkg/config"
	"github.com/smartmeet/notetaker/pkg/models"
	"github.com/smartmeet/notetaker/pkg/statestore"
)

const joinWindowAfter = 15 * time.Minute
const triggerBefore = 2 * time.Minute

func event(id string, start time.Time, dur time.Duration, meetURL string) models.Event {
	return models.Event{EventID: id, StartUTC: start, EndUTC: start.Add(dur), MeetURL: meetURL}
}

func TestClassifyEligibleSkipsUnsupportedURLEndedAndTriggered(t *testing.T) {
	now := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	triggers := statestore.NewTriggerStore(t.TempDir())

	noURL := event("no-url", now.Add(time.Minute), 30*time.Minute, "")
	unsupported := event("zoom", now.Add(time.Minute), 30*time.Minute, "https://zoom.us/j/1")
	ended := event("ended", now.Add(-time.Hour), 30*time.Minute, "https://meet.google.com/abc-defg-hij")
	alreadyTriggered := event("triggered", now.Add(time.Minute), 30*time.Minute, "https://meet.google.com/xyz-defg-hij")
	require.NoError(t, triggers.MarkTriggered(alreadyTriggered.EventID, alreadyTriggered.StartUTC, now))

	eligible, err := ClassifyEligible(context.Background(), []models.Event{noURL, unsupported, ended, alreadyTriggered}, now, triggerBefore, joinWindowAfter, triggers)
	require.NoError(t, err)
	assert.Empty(t, eligible)
}

func TestClassifyEligibleKeepsJoinWindowAndInProgressEvents(t *testing.T) {
	now := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	triggers := statestore.NewTriggerStore(t.TempDir())

	upcoming := event("upcoming", now.Add(time.Minute), 30*time.Minute, "https://meet.google.com/abc-defg-hij")
	inProgress := event("in-progress", now.Add(-10*time.Minute), time.Hour, "https://meet.google.com/bcd-efgh-ijk")
	tooFarAhead := event("too-far", now.Add(time.Hour), 30*time.Minute, "https://meet.google.com/cde-fghi-jkl")

	eligible, err := ClassifyEligible(context.Background(), []models.Event{tooFarAhead, upcoming, inProgress}, now, triggerBefore, joinWindowAfter, triggers)
	require.NoError(t, err)
	require.Len(t, eligible, 2)
	assert.Equal(t, "in-progress", eligible[0].EventID)
	assert.Equal(t, "upcoming", eligible[1].EventID)
}

func TestClassifyEligibleDeduplicatesByEventAndStart(t *testing.T) {
	now := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	triggers := statestore.NewTriggerStore(t.TempDir())

	ev := event("dup", now.Add(time.Minute), 30*time.Minute, "https://meet.google.com/abc-defg-hij")

	eligible, err := ClassifyEligible(context.Background(), []models.Event{ev, ev}, now, triggerBefore, joinWindowAfter, triggers)
	require.NoError(t, err)
	assert.Len(t, eligible, 1)
}

type fakeCalendar struct {
	events []models.Event
}

func (f *fakeCalendar) ListUpcomingEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time, maxResults int) ([]models.Event, error) {
	return f.events, nil
}

type fakeSupervisor struct {
	result models.MeetingRunResult
}

func (f *fakeSupervisor) Supervise(ctx context.Context, event models.Event) models.MeetingRunResult {
	return f.result
}

func TestTickDispatchesEarliestAndSkipsOverlapConflicts(t *testing.T) {
	now := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	triggers := statestore.NewTriggerStore(dir)
	lock := statestore.NewActiveLockStore(filepath.Join(dir, "lock.json"), nil)
	history := statestore.NewRunResultStore(dir)

	earlier := event("earlier", now.Add(time.Minute), 30*time.Minute, "https://meet.google.com/abc-defg-hij")
	later := event("later", now.Add(2*time.Minute), 30*time.Minute, "https://meet.google.com/bcd-efgh-ijk")

	calendar := &fakeCalendar{events: []models.Event{later, earlier}}
	dispatched := 0
	supervisorFn := func(ev models.Event) Supervisor {
		dispatched++
		return &fakeSupervisor{result: models.MeetingRunResult{EventID: ev.EventID, OK: true}}
	}

	s := New(calendar, "primary", supervisorFn, triggers, lock, history, nil, config.DefaultSchedulerConfig(), joinWindowAfter, nil)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Tick(context.Background()))

	assert.Equal(t, 1, dispatched, "only the earliest eligible event should be dispatched")

	earlierTriggered, err := triggers.WasTriggered("earlier", earlier.StartUTC)
	require.NoError(t, err)
	assert.True(t, earlierTriggered)

	laterTriggered, err := triggers.WasTriggered("later", later.StartUTC)
	require.NoError(t, err)
	assert.True(t, laterTriggered)

	laterResult, err := history.Get("later", later.StartUTC.UTC().Format("20060102T150405Z"))
	require.NoError(t, err)
	require.NotNil(t, laterResult)
	assert.Equal(t, models.FailureSkippedOverlapConflict, laterResult.FailureCode)

	lockAfter, err := lock.Read()
	require.NoError(t, err)
	assert.Nil(t, lockAfter, "lock must be released once the supervisor returns")
}

func TestTickSkipsChosenEventWhenLockUnavailable(t *testing.T) {
	now := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	triggers := statestore.NewTriggerStore(dir)
	lock := statestore.NewActiveLockStore(filepath.Join(dir, "lock.json"), nil)
	history := statestore.NewRunResultStore(dir)

	other := event("other-meeting", now.Add(-5*time.Minute), time.Hour, "https://meet.google.com/zzz-defg-hij")
	_, err := lock.Acquire(other.EventID, other.StartUTC, now.Add(time.Hour), now)
	require.NoError(t, err)

	chosen := event("chosen", now.Add(time.Minute), 30*time.Minute, "https://meet.google.com/abc-defg-hij")
	calendar := &fakeCalendar{events: []models.Event{chosen}}
	dispatched := 0
	supervisorFn := func(ev models.Event) Supervisor {
		dispatched++
		return &fakeSupervisor{result: models.MeetingRunResult{EventID: ev.EventID, OK: true}}
	}

	s := New(calendar, "primary", supervisorFn, triggers, lock, history, nil, config.DefaultSchedulerConfig(), joinWindowAfter, nil)
	s.now = func() time.Time { return now }
	require.NoError(t, s.Tick(context.Background()))

	assert.Equal(t, 0, dispatched)
	result, err := history.Get("chosen", chosen.StartUTC.UTC().Format("20060102T150405Z"))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, models.FailureSkippedOverlapConflict, result.FailureCode)
}
