// Package scheduler implements the Calendar Poller + Scheduler cooperative
// poll loop (spec §4.3, §4.4), grounded on the teacher's
// pkg/queue/worker.go run loop (stopCh/ctx select, jittered poll interval,
// sleep-until-stopped helper) generalized from "claim a queued session" to
// "classify eligible calendar events and dispatch at most one meeting".
package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/smartmeet/notetaker/pkg/calendarapi"
	"github.com/smartmeet/notetaker/pkg/config"
	"github.com/smartmeet/notetaker/pkg/models"
	"github.com/smartmeet/notetaker/pkg/notify"
	"github.com/smartmeet/notetaker/pkg/statestore"
)

// ClassifyEligible filters raw candidate events down to the sorted,
// deduplicated eligible list the Scheduler may dispatch from (spec §4.3):
// it drops events without a supported meeting URL, events that have
// already ended, and occurrences already present in the TriggerStore, then
// keeps only events inside their join window or already in progress.
func ClassifyEligible(ctx context.Context, events []models.Event, now time.Time, triggerBefore, joinWindowAfter time.Duration, triggers *statestore.TriggerStore) ([]models.Event, error) {
	seen := make(map[string]bool, len(events))
	eligible := make([]models.Event, 0, len(events))

	for _, ev := range events {
		key := ev.EventID + "@" + ev.StartUTC.UTC().Format(time.RFC3339)
		if seen[key] {
			continue
		}
		seen[key] = true

		if ev.MeetURL == "" || !calendarapi.IsSupportedMeetURL(ev.MeetURL) {
			continue
		}
		if !ev.EndUTC.After(now) {
			continue
		}

		triggered, err := triggers.WasTriggered(ev.EventID, ev.StartUTC)
		if err != nil {
			return nil, err
		}
		if triggered {
			continue
		}

		inJoinWindow := !now.Before(ev.StartUTC.Add(-triggerBefore)) && now.Before(ev.StartUTC.Add(joinWindowAfter))
		inProgress := !ev.StartUTC.After(now) && now.Before(ev.EndUTC)
		if !inJoinWindow && !inProgress {
			continue
		}

		eligible = append(eligible, ev)
	}

	sort.Slice(eligible, func(i, j int) bool { return eligible[i].StartUTC.Before(eligible[j].StartUTC) })
	return eligible, nil
}

// Supervisor is the capability the Scheduler dispatches to. notetaker.Supervisor
// satisfies this directly.
type Supervisor interface {
	Supervise(ctx context.Context, event models.Event) models.MeetingRunResult
}

// Scheduler runs the single-threaded cooperative poll loop: list eligible
// events, enforce the single-active-meeting policy, and invoke the
// Supervisor for at most one meeting per tick.
type Scheduler struct {
	calendar        calendarapi.Provider
	calendarID      string
	supervisorFn    func(bot models.Event) Supervisor
	triggers        *statestore.TriggerStore
	lock            *statestore.ActiveLockStore
	history         *statestore.RunResultStore
	sink            notify.NotificationSink
	cfg             *config.SchedulerConfig
	joinWindowAfter time.Duration
	now             func() time.Time

	log *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a Scheduler. supervisorFn constructs a fresh Supervisor for
// the event about to be dispatched — one Supervisor instance per meeting,
// matching the teacher's "construct the session-scoped dependency right
// before Execute" pattern in pollAndProcess.
func New(
	calendar calendarapi.Provider,
	calendarID string,
	supervisorFn func(event models.Event) Supervisor,
	triggers *statestore.TriggerStore,
	lock *statestore.ActiveLockStore,
	history *statestore.RunResultStore,
	sink notify.NotificationSink,
	cfg *config.SchedulerConfig,
	joinWindowAfter time.Duration,
	log *slog.Logger,
) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if sink == nil {
		// A bare nil interface would panic on the first method call; a
		// typed nil *WebhookSink is safe because every method on it
		// guards against a nil receiver.
		sink = (*notify.WebhookSink)(nil)
	}
	return &Scheduler{
		calendar:        calendar,
		calendarID:      calendarID,
		supervisorFn:    supervisorFn,
		triggers:        triggers,
		lock:            lock,
		history:         history,
		sink:            sink,
		cfg:             cfg,
		joinWindowAfter: joinWindowAfter,
		now:             time.Now,
		log:             log.With("component", "scheduler"),
		stopCh:          make(chan struct{}),
	}
}

// Start begins the poll loop in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop signals the loop to exit and waits for the in-flight tick (if any)
// to finish. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	s.log.Info("scheduler started", "poll_interval", s.cfg.PollInterval)

	for {
		select {
		case <-s.stopCh:
			s.log.Info("scheduler stopping")
			return
		case <-ctx.Done():
			s.log.Info("scheduler context cancelled")
			return
		default:
			if err := s.Tick(ctx); err != nil {
				s.log.Error("scheduler tick failed", "error", err)
			}
			s.sleep(s.pollInterval())
		}
	}
}

func (s *Scheduler) sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.stopCh:
	case <-t.C:
	}
}

func (s *Scheduler) pollInterval() time.Duration {
	base := s.cfg.PollInterval
	jitter := s.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int63n(int64(2 * jitter)))
	return base - jitter + offset
}

// Tick runs one poll cycle: list events, classify the eligible list, and
// enforce the single-active-meeting policy (spec §4.4) over it.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now().UTC()
	timeMin := now.Add(-s.cfg.LookaheadWindow)
	timeMax := now.Add(s.cfg.LookaheadWindow)

	events, err := s.calendar.ListUpcomingEvents(ctx, s.calendarID, timeMin, timeMax, s.cfg.MaxResults)
	if err != nil {
		return err
	}

	eligible, err := ClassifyEligible(ctx, events, now, s.cfg.TriggerBefore, s.joinWindowAfter, s.triggers)
	if err != nil {
		return err
	}
	if len(eligible) == 0 {
		return nil
	}

	chosen := eligible[0]
	for _, skipped := range eligible[1:] {
		s.recordSkipped(skipped, now)
	}

	acquired, err := s.lock.Acquire(chosen.EventID, chosen.StartUTC, chosen.EndUTC.Add(30*time.Minute), now)
	if err != nil {
		return err
	}
	if !acquired {
		s.recordSkipped(chosen, now)
		return nil
	}

	s.log.Info("dispatching notetaker", "event_id", chosen.EventID, "start", chosen.StartUTC)
	s.sink.MeetingStarted(ctx, chosen.EventID, chosen.Summary)

	supervisor := s.supervisorFn(chosen)
	result := supervisor.Supervise(ctx, chosen)

	if err := s.triggers.MarkTriggered(chosen.EventID, chosen.StartUTC, time.Now().UTC()); err != nil {
		s.log.Error("failed to mark event triggered", "event_id", chosen.EventID, "error", err)
	}
	s.lock.Release(chosen.EventID, chosen.StartUTC)
	s.sink.MeetingEnded(ctx, chosen.EventID, result.OK, string(result.FailureCode))

	return nil
}

func (s *Scheduler) recordSkipped(ev models.Event, now time.Time) {
	if err := s.triggers.MarkTriggered(ev.EventID, ev.StartUTC, now); err != nil {
		s.log.Error("failed to mark skipped event triggered", "event_id", ev.EventID, "error", err)
	}
	result := models.MeetingRunResult{
		EventID:       ev.EventID,
		EventStartUTC: ev.StartUTC,
		OK:            false,
		FailureCode:   models.FailureSkippedOverlapConflict,
		Reason:        "another eligible meeting was chosen for this poll tick",
		StartedAtUTC:  now,
		EndedAtUTC:    now,
	}
	if err := s.history.Save(result); err != nil {
		s.log.Error("failed to persist skipped meeting run result", "event_id", ev.EventID, "error", err)
	}
}
