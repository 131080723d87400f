package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptsched/internal/model"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token", t.TempDir())
}

func TestFetchWeekSessions(t *testing.T) {
	var gotAuth, gotReqID string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		assert.Equal(t, "/api/auto-scheduling/sessions", r.URL.Path)
		assert.Equal(t, "2024", r.URL.Query().Get("year"))
		assert.Equal(t, "11", r.URL.Query().Get("week"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"sessions": [
				{"member_id":"m-1","member_name":"Kim","hour":10,"day":"MON","week":11,"result_line_id":77}
			],
			"week_statuses": {"11":"PENDING"}
		}`))
	}))

	data, err := c.FetchWeekSessions(context.Background(), 2024, 11)
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.NotEmpty(t, gotReqID)
	require.Len(t, data.Sessions, 1)
	assert.Equal(t, "m-1", data.Sessions[0].MemberID)
	require.NotNil(t, data.Sessions[0].ResultLineID)
	assert.Equal(t, int64(77), *data.Sessions[0].ResultLineID)
	assert.Equal(t, model.StatusPending, data.Statuses[11])
}

func TestFetchWeekSessions_NotModifiedUsesCache(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`{"sessions":[],"week_statuses":{"3":"FIXED"}}`))
	}))

	first, err := c.FetchWeekSessions(context.Background(), 2024, 3)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFixed, first.Statuses[3])

	second, err := c.FetchWeekSessions(context.Background(), 2024, 3)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFixed, second.Statuses[3])
	assert.Equal(t, 2, calls)
}

func TestFixSchedule(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auto-scheduling/fix", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))

	ok, err := c.FixSchedule(context.Background(), 2024, 12)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeleteAutoScheduling_Rejected(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		_, _ = w.Write([]byte(`{"success":false}`))
	}))

	ok, err := c.DeleteAutoScheduling(context.Background(), 2024, 12)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRequestCancellation(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auto-scheduling/lines/42/cancel-request", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":false,"message":"too late to cancel"}`))
	}))

	res, err := c.RequestCancellation(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "too late to cancel", res.Message)
}

func TestDoJSON_NonOKStatusIsError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.FixSchedule(context.Background(), 2024, 12)
	require.Error(t, err)
}
