package schedule

import (
	"context"
	"time"

	"ptsched/internal/api"
	"ptsched/internal/log"
	"ptsched/internal/model"
	"ptsched/internal/refresh"
	"ptsched/internal/weekcal"
)

// RemoteService is the slice of the scheduling service the action layer
// depends on. Satisfied by *api.Client.
type RemoteService interface {
	FixSchedule(ctx context.Context, year, week int) (bool, error)
	DeleteAutoScheduling(ctx context.Context, year, week int) (bool, error)
	RequestCancellation(ctx context.Context, lineID int64) (api.CancellationResult, error)
}

// Notifier surfaces action outcomes to the user. Every action resolves into
// exactly one Success or Failure notice; there is no silent path.
type Notifier interface {
	Success(msg string)
	Failure(msg string)
}

// Navigator moves the user to another flow with a parameter bag. Only the
// scheduling-setup flow is reachable from this layer.
type Navigator interface {
	Navigate(route string, params NavParams)
}

// RouteSchedulingSetup is the target route after a successful week reset.
const RouteSchedulingSetup = "scheduling-setup"

// NavParams is the parameter bag passed on navigation.
type NavParams struct {
	WeekToReset int
	ResetMode   bool
}

// User-facing notices. Remote rejections of a cancellation carry the
// server's own message instead.
const (
	msgConfirmOnlyNextWeek = "Only next week's schedule can be confirmed."
	msgConfirmRejected     = "The schedule could not be confirmed."
	msgConfirmed           = "Next week's schedule is confirmed. Members have been notified."
	msgResetNotAllowed     = "This week's schedule cannot be reset."
	msgResetRejected       = "The schedule could not be reset."
	msgResetDone           = "The schedule was reset."
	msgNoSelection         = "Select a session first."
	msgNotOwnSession       = "Only your own sessions can be cancelled."
	msgNotCancellable      = "This session cannot be cancelled yet."
	msgGenericFailure      = "Something went wrong. Please try again."
)

// Planner executes the user-triggered schedule transitions. All failures are
// terminal here: they are logged, surfaced through the Notifier, and never
// propagate to the caller. The layer performs no retry and no deduplication
// of in-flight requests; callers disable their triggers while a call runs.
type Planner struct {
	remote  RemoteService
	tracker *Tracker
	signal  *refresh.Signal
	notify  Notifier
	nav     Navigator

	// accountID is the acting account; member cancellation is limited to
	// sessions owned by it.
	accountID string

	// nextWeekScheduling supplies the externally controlled flag gating
	// week resets.
	nextWeekScheduling func() bool

	// now is the live clock; predicates are recomputed against it on every
	// call.
	now Clock
}

// Clock returns the current time. Injected so tests can pin the reference
// week.
type Clock func() time.Time

// NewPlanner wires a Planner. nextWeekScheduling may be nil (treated as
// always false, matching a service with the flow disabled).
func NewPlanner(remote RemoteService, tracker *Tracker, signal *refresh.Signal, notify Notifier, nav Navigator, accountID string, nextWeekScheduling func() bool, now Clock) *Planner {
	if nextWeekScheduling == nil {
		nextWeekScheduling = func() bool { return false }
	}
	if now == nil {
		now = time.Now
	}
	return &Planner{
		remote:             remote,
		tracker:            tracker,
		signal:             signal,
		notify:             notify,
		nav:                nav,
		accountID:          accountID,
		nextWeekScheduling: nextWeekScheduling,
		now:                now,
	}
}

// ConfirmWeek fixes the schedule for (year, week). Trainer action. Only the
// week immediately after the current one is confirmable; the check runs
// before any remote call.
func (p *Planner) ConfirmWeek(ctx context.Context, year, week int) {
	now := p.now()
	if !weekcal.IsNextWeek(now, week) {
		p.notify.Failure(msgConfirmOnlyNextWeek)
		return
	}

	ok, err := p.remote.FixSchedule(ctx, year, week)
	if err != nil {
		log.Error("confirm week failed", err, "year", year, "week", week)
		p.notify.Failure(msgGenericFailure)
		return
	}
	if !ok {
		p.notify.Failure(msgConfirmRejected)
		return
	}

	p.tracker.SetWeekStatus(week, model.StatusFixed)
	p.signal.Trigger(refresh.ReasonWeekStatus)
	p.notify.Success(msgConfirmed)
	log.Info("week confirmed", "year", year, "week", week)
}

// ResetWeek discards the auto-scheduling result for (year, week). Trainer
// action. Enabled only for weeks that are neither past nor current, and only
// while next-week scheduling is active. On success the user is taken to the
// scheduling-setup flow in reset mode.
func (p *Planner) ResetWeek(ctx context.Context, year, week int) {
	now := p.now()
	if weekcal.IsPastWeek(now, week) || weekcal.IsCurrentWeek(now, week) || !p.nextWeekScheduling() {
		p.notify.Failure(msgResetNotAllowed)
		return
	}

	ok, err := p.remote.DeleteAutoScheduling(ctx, year, week)
	if err != nil {
		log.Error("reset week failed", err, "year", year, "week", week)
		p.notify.Failure(msgGenericFailure)
		return
	}
	if !ok {
		p.notify.Failure(msgResetRejected)
		return
	}

	p.tracker.SetWeekStatus(week, model.StatusPlaceholder)
	p.signal.Trigger(refresh.ReasonScheduleReset)
	if p.nav != nil {
		p.nav.Navigate(RouteSchedulingSetup, NavParams{WeekToReset: week, ResetMode: true})
	}
	p.notify.Success(msgResetDone)
	log.Info("week reset", "year", year, "week", week)
}

// CancelSession requests cancellation of the currently selected session.
// Member action. The session must belong to the acting account and must
// carry a result-line id (a slot not yet materialized server-side has
// nothing to cancel).
func (p *Planner) CancelSession(ctx context.Context) {
	sel, ok := p.tracker.Selection()
	if !ok {
		p.notify.Failure(msgNoSelection)
		return
	}
	if sel.MemberID != p.accountID {
		p.notify.Failure(msgNotOwnSession)
		return
	}
	if !sel.Cancellable() {
		p.notify.Failure(msgNotCancellable)
		return
	}

	res, err := p.remote.RequestCancellation(ctx, *sel.ResultLineID)
	if err != nil {
		log.Error("cancel session failed", err, "line_id", *sel.ResultLineID)
		p.notify.Failure(msgGenericFailure)
		return
	}

	msg := res.Message
	if msg == "" {
		msg = msgGenericFailure
	}
	if !res.Success {
		p.notify.Failure(msg)
		return
	}

	p.signal.Trigger(refresh.ReasonSessions)
	p.tracker.ClearSelection()
	p.notify.Success(msg)
	log.Info("session cancellation requested", "line_id", *sel.ResultLineID)
}
