package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptsched/internal/api"
	"ptsched/internal/config"
	"ptsched/internal/model"
	"ptsched/internal/refresh"
	"ptsched/internal/schedule"
)

// fakeRemote scripts the scheduling service for handler tests.
type fakeRemote struct {
	fixOK     bool
	deleteOK  bool
	cancelRes api.CancellationResult
	weekData  api.WeekData
	fetches   int
}

func (f *fakeRemote) FixSchedule(context.Context, int, int) (bool, error) {
	return f.fixOK, nil
}

func (f *fakeRemote) DeleteAutoScheduling(context.Context, int, int) (bool, error) {
	return f.deleteOK, nil
}

func (f *fakeRemote) RequestCancellation(context.Context, int64) (api.CancellationResult, error) {
	return f.cancelRes, nil
}

func (f *fakeRemote) FetchWeekSessions(context.Context, int, int) (api.WeekData, error) {
	f.fetches++
	return f.weekData, nil
}

// week 10 of 2024 is the reference; week 11 is confirmable.
var testNow = func() time.Time {
	return time.Date(2024, time.March, 6, 12, 0, 0, 0, time.UTC)
}

type env struct {
	remote  *fakeRemote
	tracker *schedule.Tracker
	signal  *refresh.Signal
	srv     *Server
}

func newEnv(t *testing.T, role config.Role) *env {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Role = role
	cfg.AccountID = "member-1"
	cfg.NextWeekScheduling = true
	cfg.DataDir = t.TempDir()

	e := &env{
		remote:  &fakeRemote{},
		tracker: schedule.NewTracker(nil),
		signal:  refresh.NewSignal(),
	}
	e.tracker.ReplaceWeek(2024, 11,
		[]model.Session{{MemberID: "member-1", MemberName: "Kim", Hour: 10, Day: "MON", Week: 11}},
		map[int]model.WeekStatus{11: model.StatusPending},
	)
	e.srv = NewServer(cfg, e.tracker, e.signal, e.remote, testNow)
	return e
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	e := newEnv(t, config.RoleMember)
	rec := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestWeek_LoadedWeekServedFromTracker(t *testing.T) {
	e := newEnv(t, config.RoleMember)

	rec := e.do(t, http.MethodGet, "/api/week?year=2024&week=11", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp weekResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 11, resp.Week)
	assert.Equal(t, model.StatusPending, resp.Status)
	assert.Equal(t, "03/11", resp.RangeStart)
	assert.Equal(t, "03/17", resp.RangeEnd)
	assert.True(t, resp.IsNext)
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, 0, e.remote.fetches)
}

func TestWeek_AdHocWeekReadsThrough(t *testing.T) {
	e := newEnv(t, config.RoleMember)
	e.remote.weekData = api.WeekData{Statuses: map[int]model.WeekStatus{14: model.StatusFixed}}

	rec := e.do(t, http.MethodGet, "/api/week?year=2024&week=14", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp weekResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 14, resp.Week)
	assert.Equal(t, model.StatusFixed, resp.Status)
	assert.Equal(t, 1, e.remote.fetches)
}

func TestConfirm_TrainerOnly(t *testing.T) {
	e := newEnv(t, config.RoleMember)
	rec := e.do(t, http.MethodPost, "/api/week/confirm", actionRequest{Year: 2024, Week: 11})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestConfirm_Success(t *testing.T) {
	e := newEnv(t, config.RoleTrainer)
	e.remote.fixOK = true

	rec := e.do(t, http.MethodPost, "/api/week/confirm", actionRequest{Year: 2024, Week: 11})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp actionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, model.StatusFixed, e.tracker.WeekStatus(11))
	assert.Equal(t, uint64(1), e.signal.Count())
}

func TestReset_NavigationReturned(t *testing.T) {
	e := newEnv(t, config.RoleTrainer)
	e.remote.deleteOK = true

	rec := e.do(t, http.MethodPost, "/api/week/reset", actionRequest{Year: 2024, Week: 11})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp actionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	require.NotNil(t, resp.Navigate)
	assert.Equal(t, schedule.RouteSchedulingSetup, resp.Navigate.Route)
	assert.Equal(t, 11, resp.Navigate.WeekToReset)
	assert.True(t, resp.Navigate.ResetMode)
	assert.Equal(t, model.StatusPlaceholder, e.tracker.WeekStatus(11))
}

func TestSelectAndCancel(t *testing.T) {
	e := newEnv(t, config.RoleMember)
	line := int64(5)
	e.tracker.ReplaceWeek(2024, 11,
		[]model.Session{{MemberID: "member-1", Hour: 10, Day: "MON", Week: 11, ResultLineID: &line}},
		nil,
	)
	e.remote.cancelRes = api.CancellationResult{Success: true, Message: "done"}

	rec := e.do(t, http.MethodPost, "/api/session/select", selectRequest{Day: "MON", Hour: 10})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/session/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp actionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	require.Len(t, resp.Notices, 1)
	assert.Equal(t, "done", resp.Notices[0].Message)

	_, selected := e.tracker.Selection()
	assert.False(t, selected)
}

func TestSelect_MissingSlot(t *testing.T) {
	e := newEnv(t, config.RoleMember)
	rec := e.do(t, http.MethodPost, "/api/session/select", selectRequest{Day: "FRI", Hour: 23})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSlotGrid(t *testing.T) {
	e := newEnv(t, config.RoleMember)

	rec := e.do(t, http.MethodPost, "/api/slot-grid", slotGridRequest{
		Periodic: []model.PeriodicSlot{{Weekday: time.Monday, Hour: 9}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var grid schedule.SlotGrid
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grid))
	require.Len(t, grid["MON"], 1)
	assert.Equal(t, model.SlotRecurring, grid["MON"][0].State)
}

func TestRefreshCounter(t *testing.T) {
	e := newEnv(t, config.RoleMember)
	e.signal.Trigger(refresh.ReasonSessions)

	rec := e.do(t, http.MethodGet, "/api/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]uint64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1), resp["count"])
}

func TestCalendarICS(t *testing.T) {
	e := newEnv(t, config.RoleMember)

	rec := e.do(t, http.MethodGet, "/calendar.ics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(t, rec.Body.String(), "BEGIN:VCALENDAR")
}

func TestCalendarICS_RecurringFromConfiguredSlots(t *testing.T) {
	e := newEnv(t, config.RoleMember)
	e.srv.cfg.Slots = []config.RecurringSlotConfig{
		{Day: "TUE", Hour: 7},
		{Day: "???", Hour: 9}, // unknown label skipped
	}

	rec := e.do(t, http.MethodGet, "/calendar.ics?recurring=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "RRULE:FREQ=WEEKLY;BYDAY=TU")
	assert.Contains(t, body, "recurring-2-07@ptsched")
	assert.NotContains(t, body, "-09@ptsched")
}

func TestBasicAuth(t *testing.T) {
	e := newEnv(t, config.RoleMember)
	e.srv.cfg.BasicAuth = &config.BasicAuthConfig{Username: "u", Password: "p"}

	// /health stays open.
	rec := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Everything else requires credentials.
	rec = e.do(t, http.MethodGet, "/api/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/refresh", nil)
	req.SetBasicAuth("u", "p")
	auth := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(auth, req)
	assert.Equal(t, http.StatusOK, auth.Code)
}
