// Package schedule is the client-side scheduling core: the week status /
// session state container, the trainer/member action layer, and the weekly
// slot grid projection.
package schedule

import (
	"sync"

	"ptsched/internal/log"
	"ptsched/internal/model"
)

// SnapshotStore persists tracker state across restarts. Satisfied by
// *store.Store; kept as an interface so tests can run without a database.
type SnapshotStore interface {
	SaveWeekStatuses(year int, statuses map[int]model.WeekStatus) error
	LoadWeekStatuses(year int) (map[int]model.WeekStatus, error)
	SaveSessions(year, week int, sessions []model.Session) error
	LoadSessions(year, week int) ([]model.Session, error)
}

// Tracker owns the mutable scheduling state: the week->status map, the
// currently loaded week's session list, and the member's session selection.
// It is an injected value with a single owner (main), not an ambient
// singleton; every observer reads the latest value through its accessors.
//
// Mutations are whole-value assignments under the mutex, so readers always
// observe either the pre- or post-mutation snapshot, never a partial write.
type Tracker struct {
	mu sync.RWMutex

	year     int
	week     int
	statuses map[int]model.WeekStatus
	sessions []model.Session

	selection    model.Session
	hasSelection bool

	snap SnapshotStore // may be nil (no persistence)
}

// NewTracker returns an empty Tracker persisting through snap. snap may be
// nil, in which case state lives only in memory.
func NewTracker(snap SnapshotStore) *Tracker {
	return &Tracker{
		statuses: make(map[int]model.WeekStatus),
		snap:     snap,
	}
}

// Hydrate loads persisted statuses and sessions for (year, week) into the
// tracker. Missing snapshots leave the corresponding state empty; storage
// errors are logged and swallowed because the snapshots are an optimization,
// not the source of truth (the next sync replaces them wholesale).
func (t *Tracker) Hydrate(year, week int) {
	statuses := make(map[int]model.WeekStatus)
	var sessions []model.Session

	if t.snap != nil {
		var err error
		statuses, err = t.snap.LoadWeekStatuses(year)
		if err != nil {
			log.Error("hydrate week statuses failed", err, "year", year)
			statuses = make(map[int]model.WeekStatus)
		}
		sessions, err = t.snap.LoadSessions(year, week)
		if err != nil {
			log.Error("hydrate sessions failed", err, "year", year, "week", week)
			sessions = nil
		}
	}

	t.mu.Lock()
	t.year = year
	t.week = week
	t.statuses = statuses
	t.sessions = sessions
	t.mu.Unlock()
}

// Year returns the year the tracker currently holds state for.
func (t *Tracker) Year() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.year
}

// Week returns the week the tracker's session list belongs to.
func (t *Tracker) Week() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.week
}

// ReplaceWeek swaps in a freshly fetched week wholesale: the session list is
// replaced and the fetched statuses overwrite local ones key by key.
//
// The key-by-key merge is a deliberate divergence from a full wholesale
// replace: the fetch envelope only carries statuses near the requested week,
// so a straight assignment would wipe statuses of weeks outside the envelope.
// The cost is that a week deleted server-side keeps its stale local status
// until restart.
func (t *Tracker) ReplaceWeek(year, week int, sessions []model.Session, statuses map[int]model.WeekStatus) {
	t.mu.Lock()
	t.year = year
	t.week = week
	t.sessions = sessions
	for w, st := range statuses {
		t.statuses[w] = st
	}
	t.mu.Unlock()

	t.persist()
}

// SetWeekStatus records a local status transition for a week (used by the
// confirm and reset actions after a successful remote call).
func (t *Tracker) SetWeekStatus(week int, st model.WeekStatus) {
	t.mu.Lock()
	t.statuses[week] = st
	t.mu.Unlock()

	t.persist()
}

// WeekStatus returns the status of a week. Weeks never reported by the
// service are placeholders (reset/uninitialized).
func (t *Tracker) WeekStatus(week int) model.WeekStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if st, ok := t.statuses[week]; ok {
		return st
	}
	return model.StatusPlaceholder
}

// Statuses returns a copy of the week->status map.
func (t *Tracker) Statuses() map[int]model.WeekStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int]model.WeekStatus, len(t.statuses))
	for w, st := range t.statuses {
		out[w] = st
	}
	return out
}

// Sessions returns a copy of the current week's session list.
func (t *Tracker) Sessions() []model.Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.Session, len(t.sessions))
	copy(out, t.sessions)
	return out
}

// Select records the member's current session selection.
func (t *Tracker) Select(s model.Session) {
	t.mu.Lock()
	t.selection = s
	t.hasSelection = true
	t.mu.Unlock()
}

// Selection returns the current selection, if any.
func (t *Tracker) Selection() (model.Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.selection, t.hasSelection
}

// ClearSelection drops the current selection.
func (t *Tracker) ClearSelection() {
	t.mu.Lock()
	t.selection = model.Session{}
	t.hasSelection = false
	t.mu.Unlock()
}

// persist writes the current snapshots through the store, best effort.
func (t *Tracker) persist() {
	if t.snap == nil {
		return
	}

	t.mu.RLock()
	year, week := t.year, t.week
	statuses := make(map[int]model.WeekStatus, len(t.statuses))
	for w, st := range t.statuses {
		statuses[w] = st
	}
	sessions := make([]model.Session, len(t.sessions))
	copy(sessions, t.sessions)
	t.mu.RUnlock()

	if err := t.snap.SaveWeekStatuses(year, statuses); err != nil {
		log.Error("persist week statuses failed", err, "year", year)
	}
	if err := t.snap.SaveSessions(year, week, sessions); err != nil {
		log.Error("persist sessions failed", err, "year", year, "week", week)
	}
}
