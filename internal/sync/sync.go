// Package sync keeps the local tracker in step with the scheduling service.
// Two cues drive a re-fetch: the periodic cron schedule from config, and the
// refresh signal raised by completed actions. The syncer is an observer of
// the signal, never a trigger, so action -> signal -> re-fetch cannot loop.
package sync

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"ptsched/internal/api"
	"ptsched/internal/log"
	"ptsched/internal/refresh"
	"ptsched/internal/schedule"
	"ptsched/internal/weekcal"
)

// WeekFetcher is the read side of the scheduling service. Satisfied by
// *api.Client.
type WeekFetcher interface {
	FetchWeekSessions(ctx context.Context, year, week int) (api.WeekData, error)
}

// Syncer pulls week snapshots from the service into the tracker.
type Syncer struct {
	remote  WeekFetcher
	tracker *schedule.Tracker
	signal  *refresh.Signal
	now     func() time.Time

	// OnSynced, if set, runs after each successful sync (used to kick the
	// board snapshot pipeline).
	OnSynced func(ctx context.Context)
}

// NewSyncer wires a Syncer. now may be nil (defaults to time.Now).
func NewSyncer(remote WeekFetcher, tracker *schedule.Tracker, signal *refresh.Signal, now func() time.Time) *Syncer {
	if now == nil {
		now = time.Now
	}
	return &Syncer{
		remote:  remote,
		tracker: tracker,
		signal:  signal,
		now:     now,
	}
}

// SyncWeek fetches (year, week) and replaces the tracker's state wholesale.
func (s *Syncer) SyncWeek(ctx context.Context, year, week int) error {
	data, err := s.remote.FetchWeekSessions(ctx, year, week)
	if err != nil {
		return err
	}

	s.tracker.ReplaceWeek(year, week, data.Sessions, data.Statuses)
	log.Debug("week synced", "year", year, "week", week, "session_count", len(data.Sessions))

	if s.OnSynced != nil {
		s.OnSynced(ctx)
	}
	return nil
}

// SyncNextWeek syncs the week after the current one — the week being
// negotiated, the only one the action layer mutates.
func (s *Syncer) SyncNextWeek(ctx context.Context) error {
	year, week := weekcal.NextWeekYearAndWeek(s.now())
	return s.SyncWeek(ctx, year, week)
}

// Run blocks until ctx is done, re-syncing on the given cron schedule and on
// every refresh event. Sync failures are logged and the loop keeps going;
// the next cue retries naturally (no backoff of its own).
func (s *Syncer) Run(ctx context.Context, cronSpec string) error {
	events, cancel := s.signal.Subscribe()
	defer cancel()

	ticks := make(chan struct{}, 1)
	c := cron.New()
	if _, err := c.AddFunc(cronSpec, func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	}); err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	// Initial sync so the web surface has data before the first cron tick.
	if err := s.SyncNextWeek(ctx); err != nil {
		log.Error("initial sync failed", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticks:
			if err := s.SyncNextWeek(ctx); err != nil {
				log.Error("scheduled sync failed", err)
			}
		case ev := <-events:
			if err := s.SyncNextWeek(ctx); err != nil {
				log.Error("refresh-driven sync failed", err, "seq", ev.Seq, "reason", string(ev.Reason))
			}
		}
	}
}
