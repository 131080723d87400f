// Package refresh implements the cross-component "something changed,
// re-fetch" broadcast. The original design was a bare incrementing counter;
// this version keeps the counter semantics (starts at 0, +1 per trigger) but
// attaches a typed reason so observers can scope their re-fetches instead of
// re-fetching everything on every change.
package refresh

import (
	"slices"
	"sync"

	"ptsched/internal/log"
)

// Reason describes what kind of change triggered a refresh.
type Reason string

const (
	// ReasonSessions: a week's session list changed (e.g. a cancellation).
	ReasonSessions Reason = "sessions"
	// ReasonWeekStatus: a week's status changed (e.g. a week was fixed).
	ReasonWeekStatus Reason = "week-status"
	// ReasonScheduleReset: a week's auto-scheduling result was discarded.
	ReasonScheduleReset Reason = "schedule-reset"
)

// Event is delivered to subscribers on each trigger.
type Event struct {
	// Seq is the counter value after the increment. Strictly increasing.
	Seq uint64
	// Reason scopes the change.
	Reason Reason
}

// Signal is a shared refresh broadcast. The zero value is not usable; use
// NewSignal. A Signal has a defined owner (main) and is injected into the
// components that trigger or observe it.
type Signal struct {
	mu    sync.Mutex
	count uint64
	subs  []chan Event
}

// NewSignal returns a Signal with the counter at 0.
func NewSignal() *Signal {
	return &Signal{}
}

// Trigger increments the counter by exactly one and notifies subscribers.
// Delivery is non-blocking: a subscriber that has fallen behind misses
// intermediate events but can always reconcile via Count().
func (s *Signal) Trigger(reason Reason) {
	s.mu.Lock()
	s.count++
	ev := Event{Seq: s.count, Reason: reason}
	// Clone so delivery never touches the shared backing array; Subscribe
	// and cancel mutate it in place under the lock.
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	log.Debug("refresh triggered", "seq", ev.Seq, "reason", string(reason))

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// Subscriber busy; it will catch up from Count().
		}
	}
}

// Count returns the current counter value. Observers comparing against a
// previously seen value treat any difference as a re-fetch cue.
func (s *Signal) Count() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Subscribe registers a new observer channel. The returned cancel func
// removes the subscription; it is safe to call more than once.
func (s *Signal) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub == ch {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}
