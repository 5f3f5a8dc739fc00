// Package notetaker implements the Notetaker Supervisor state machine
// (spec §4.5), grounded on
// original_source/smartmeetos/notetaker/supervisor.py: join-window
// attempts, two-signal end-of-meeting detection, rejoin-on-disconnect, and
// denial/kick caps that eventually give up on a meeting.
package notetaker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/smartmeet/notetaker/pkg/config"
	"github.com/smartmeet/notetaker/pkg/models"
	"github.com/smartmeet/notetaker/pkg/notetaker/botapi"
	"github.com/smartmeet/notetaker/pkg/statestore"
)

// Supervisor drives one meeting's bot lifecycle from join through
// finalization, appending an append-only JSONL audit trail as it goes.
type Supervisor struct {
	cfg          *config.SupervisorConfig
	bot          botapi.Provider
	history      *statestore.RunResultStore
	harvest      func(ctx context.Context, event models.Event, notetakerIDs []string)
	log          *slog.Logger
	sleep        func(ctx context.Context, d time.Duration)
	jitter30to60 func() time.Duration
}

// New builds a Supervisor. harvest is invoked in its own goroutine once the
// meeting is finalized, matching the original's daemon-thread transcript
// harvest that never blocks the supervisor's return.
func New(cfg *config.SupervisorConfig, bot botapi.Provider, history *statestore.RunResultStore, harvest func(ctx context.Context, event models.Event, notetakerIDs []string), log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		cfg:     cfg,
		bot:     bot,
		history: history,
		harvest: harvest,
		log:     log.With("component", "supervisor"),
		sleep:   ctxSleep,
		jitter30to60: func() time.Duration {
			span := cfg.JoinRetryMax - cfg.JoinRetryMin
			if span <= 0 {
				return cfg.JoinRetryMin
			}
			return cfg.JoinRetryMin + time.Duration(rand.Int63n(int64(span)))
		},
	}
}

func ctxSleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type runState struct {
	deniedCount      int
	kickedCount      int
	hadRecording     bool
	disconnectStart  *time.Time
	waitingRoomSince *time.Time
	notetakerIDs     []string
}

func (s *Supervisor) token(event models.Event) string {
	return event.StartUTC.UTC().Format("20060102T150405Z")
}

func (s *Supervisor) logEvent(event models.Event, kind string, fields map[string]any) {
	entry := map[string]any{"event": kind, "at": time.Now().UTC()}
	for k, v := range fields {
		entry[k] = v
	}
	if err := s.history.AppendHistory(event.EventID, s.token(event), entry); err != nil {
		s.log.Warn("failed to append supervisor history", "event_id", event.EventID, "error", err)
	}
}

// Supervise runs the full join/poll/rejoin state machine for event and
// returns its terminal MeetingRunResult. It never returns before the
// meeting has reached a terminal outcome (success, a failure_code, or the
// attempt deadline has passed) unless ctx is cancelled first. The Scheduler
// calls it inline on its poll goroutine, so one supervised meeting blocks
// the poll loop until it returns (spec §5).
func (s *Supervisor) Supervise(ctx context.Context, event models.Event) models.MeetingRunResult {
	startedAt := time.Now().UTC()
	joinWindowEnd := event.StartUTC.Add(s.cfg.JoinWindowAfter)
	maxEndTime := event.EndUTC.Add(s.cfg.MaxOverrun)
	endGraceTime := event.EndUTC.Add(s.cfg.EventEndGrace)
	attemptDeadline := maxEndTime

	st := &runState{}

	finalize := func(ok bool, code models.FailureCode, reason string) models.MeetingRunResult {
		result := models.MeetingRunResult{
			EventID:       event.EventID,
			EventStartUTC: event.StartUTC,
			OK:            ok,
			FailureCode:   code,
			Reason:        reason,
			NotetakerIDs:  st.notetakerIDs,
			HadRecording:  st.hadRecording,
			DeniedCount:   st.deniedCount,
			KickedCount:   st.kickedCount,
			StartedAtUTC:  startedAt,
			EndedAtUTC:    time.Now().UTC(),
		}
		return s.record(ctx, event, st, result)
	}

	for {
		now := time.Now().UTC()
		if ctx.Err() != nil {
			return finalize(true, models.FailureNone, "supervision cancelled")
		}
		if now.After(attemptDeadline) {
			return finalize(false, models.FailureMaxDurationExceeded, "max duration exceeded")
		}
		if now.After(endGraceTime) {
			return finalize(true, models.FailureNone, "grace exceeded")
		}
		if st.deniedCount >= s.cfg.MaxEntryDenials {
			return finalize(false, models.FailureJoinRefusedMax, "entry denied too many times")
		}
		if st.kickedCount >= s.cfg.MaxKicks {
			return finalize(false, models.FailureKickedMax, "kicked too many times")
		}
		if !st.hadRecording && now.After(joinWindowEnd) {
			return finalize(false, models.FailureJoinRefusedMax, "join window elapsed without ever recording")
		}

		botID, err := s.bot.Create(ctx, event.MeetURL)
		if err != nil {
			s.logEvent(event, "create_failed", map[string]any{"error": err.Error()})
			s.sleep(ctx, s.jitter30to60())
			continue
		}
		st.notetakerIDs = append(st.notetakerIDs, botID)
		s.logEvent(event, "bot_created", map[string]any{"bot_id": botID})

		outerAgain, result := s.pollUntilTerminalOrNeedsNewBot(ctx, event, st, botID, maxEndTime, endGraceTime)
		if !outerAgain {
			return result
		}
		s.sleep(ctx, s.jitter30to60())
	}
}

// pollUntilTerminalOrNeedsNewBot runs the inner polling loop for one bot
// instance. It returns (true, zero) when the outer loop should create a
// fresh bot and try again, or (false, result) when the meeting has reached
// a terminal outcome. Every iteration re-checks the max-duration and
// end-grace deadlines first (spec §4.5 inner loop steps 1-2) so a bot stuck
// in recording_active, or in any unrecognized state, can't spin past them.
func (s *Supervisor) pollUntilTerminalOrNeedsNewBot(ctx context.Context, event models.Event, st *runState, botID string, maxEndTime, endGraceTime time.Time) (bool, models.MeetingRunResult) {
	for {
		if ctx.Err() != nil {
			return false, s.finalizeCancelled(ctx, event, st)
		}

		now := time.Now().UTC()
		if now.After(maxEndTime) {
			return false, s.finalizeMaxDurationExceeded(ctx, event, st)
		}
		if !now.Before(endGraceTime) {
			return false, s.finalizeOK(ctx, event, st, "event end grace exceeded")
		}

		history, err := s.bot.GetHistory(ctx, botID)
		if err != nil || len(history) == 0 {
			s.sleep(ctx, s.cfg.StatusPoll)
			continue
		}
		latest := history[len(history)-1]
		cls := botapi.Classify(latest)

		graceExceeded := !now.Before(endGraceTime)
		mediaAvailable := false
		if links, err := s.bot.GetMediaLinks(ctx, botID); err == nil && len(links) > 0 {
			mediaAvailable = true
		}
		endSignals := 0
		if cls.LooksEnded {
			endSignals++
		}
		if graceExceeded {
			endSignals++
		}
		if mediaAvailable {
			endSignals++
		}

		switch {
		case endSignals >= 2:
			return false, s.finalizeOK(ctx, event, st, "end signals reached threshold")

		case cls.Removed:
			st.kickedCount++
			s.logEvent(event, "removed", nil)
			return true, models.MeetingRunResult{}

		case cls.ActiveRecording:
			st.hadRecording = true
			st.disconnectStart = nil
			s.sleep(ctx, s.cfg.StatusPoll)
			continue

		case st.hadRecording && (cls.LooksDisconnected || cls.FailedEntry || (st.disconnectStart != nil && cls.WaitingRoom)):
			if cls.EntryDenied {
				st.deniedCount++
				if st.deniedCount >= s.cfg.MaxEntryDenials {
					return true, models.MeetingRunResult{}
				}
			}
			if st.disconnectStart == nil {
				ts := now
				st.disconnectStart = &ts
			}
			s.sleep(ctx, s.cfg.ReconnectAttemptInterval)
			newBotID, err := s.bot.Create(ctx, event.MeetURL)
			if err != nil {
				s.logEvent(event, "rejoin_create_failed", map[string]any{"error": err.Error()})
				continue
			}
			st.notetakerIDs = append(st.notetakerIDs, newBotID)
			botID = newBotID
			s.logEvent(event, "rejoined", map[string]any{"bot_id": botID})
			continue

		case cls.WaitingRoom:
			if st.waitingRoomSince == nil {
				ts := now
				st.waitingRoomSince = &ts
			}
			if now.Sub(*st.waitingRoomSince) >= s.cfg.WaitingRoomTimeout {
				st.deniedCount++
				return true, models.MeetingRunResult{}
			}
			s.sleep(ctx, s.cfg.StatusPoll)
			continue

		case cls.FailedEntry && !st.hadRecording:
			if cls.EntryDenied {
				st.deniedCount++
			}
			return true, models.MeetingRunResult{}

		default:
			s.sleep(ctx, s.cfg.StatusPoll)
			continue
		}
	}
}

// record persists result's terminal audit entry and MeetingRunResult, and
// kicks off async transcript harvesting when the meeting produced any
// recording. It is the single exit path every finalize helper funnels
// through, so the audit trail and harvest dispatch never drift between them.
func (s *Supervisor) record(ctx context.Context, event models.Event, st *runState, result models.MeetingRunResult) models.MeetingRunResult {
	s.logEvent(event, "supervisor_end", map[string]any{"ok": result.OK, "failure_code": result.FailureCode, "reason": result.Reason})
	if err := s.history.Save(result); err != nil {
		s.log.Error("failed to persist meeting run result", "event_id", event.EventID, "error", err)
	}
	if s.harvest != nil && st.hadRecording {
		go s.harvest(context.WithoutCancel(ctx), event, st.notetakerIDs)
	}
	return result
}

func (s *Supervisor) finalizeOK(ctx context.Context, event models.Event, st *runState, reason string) models.MeetingRunResult {
	result := models.MeetingRunResult{
		EventID:       event.EventID,
		EventStartUTC: event.StartUTC,
		OK:            true,
		Reason:        reason,
		NotetakerIDs:  st.notetakerIDs,
		HadRecording:  st.hadRecording,
		DeniedCount:   st.deniedCount,
		KickedCount:   st.kickedCount,
		EndedAtUTC:    time.Now().UTC(),
	}
	return s.record(ctx, event, st, result)
}

func (s *Supervisor) finalizeMaxDurationExceeded(ctx context.Context, event models.Event, st *runState) models.MeetingRunResult {
	result := models.MeetingRunResult{
		EventID:       event.EventID,
		EventStartUTC: event.StartUTC,
		OK:            false,
		FailureCode:   models.FailureMaxDurationExceeded,
		Reason:        "meeting exceeded scheduled end + overrun limit",
		NotetakerIDs:  st.notetakerIDs,
		HadRecording:  st.hadRecording,
		DeniedCount:   st.deniedCount,
		KickedCount:   st.kickedCount,
		EndedAtUTC:    time.Now().UTC(),
	}
	return s.record(ctx, event, st, result)
}

func (s *Supervisor) finalizeCancelled(ctx context.Context, event models.Event, st *runState) models.MeetingRunResult {
	result := models.MeetingRunResult{
		EventID:       event.EventID,
		EventStartUTC: event.StartUTC,
		OK:            true,
		Reason:        fmt.Sprintf("supervision cancelled after %d notetaker attempts", len(st.notetakerIDs)),
		NotetakerIDs:  st.notetakerIDs,
		HadRecording:  st.hadRecording,
		DeniedCount:   st.deniedCount,
		KickedCount:   st.kickedCount,
		EndedAtUTC:    time.Now().UTC(),
	}
	return s.record(ctx, event, st, result)
}
