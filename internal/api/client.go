// Package api is the thin REST client for the remote scheduling service.
// It covers exactly the four operations the client core depends on: fetching
// a week's sessions, fixing a week, deleting a week's auto-scheduling result,
// and requesting cancellation of a single result line.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"ptsched/internal/log"
	"ptsched/internal/model"
)

const defaultTimeout = 15 * time.Second

// WeekData is the session-fetch response envelope. Week statuses ride on the
// same payload; the service supplies both wholesale for a fetched week.
type WeekData struct {
	Sessions []model.Session          `json:"sessions"`
	Statuses map[int]model.WeekStatus `json:"week_statuses"`
}

// ActionResult is the outcome shape of the fix/delete operations.
type ActionResult struct {
	Success bool `json:"success"`
}

// CancellationResult is the outcome shape of a cancellation request. Message
// is shown to the user verbatim on both success and rejection.
type CancellationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Client talks to the scheduling service. Construct with NewClient.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	cache   *fetchCache
}

// NewClient creates a Client for the given base URL and bearer token.
// cacheDir is where conditional-request metadata and bodies for week fetches
// are stored; if empty a relative fallback is used so development runs
// without root permissions.
func NewClient(baseURL, token, cacheDir string) *Client {
	if cacheDir == "" {
		cacheDir = "./var/api-cache"
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: defaultTimeout,
		},
		cache: newFetchCache(cacheDir),
	}
}

// FetchWeekSessions fetches the session list and week statuses for the given
// (year, week), honoring ETag / Last-Modified from the cache. On a network
// error a previously cached body is used as a fallback when available.
func (c *Client) FetchWeekSessions(ctx context.Context, year, week int) (WeekData, error) {
	var out WeekData

	u, err := c.endpoint("/api/auto-scheduling/sessions", url.Values{
		"year": {strconv.Itoa(year)},
		"week": {strconv.Itoa(week)},
	})
	if err != nil {
		return out, err
	}

	body, fromCache, err := c.fetchConditional(ctx, u)
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("api: decode week sessions: %w", err)
	}

	log.Info("week sessions fetched",
		"year", year,
		"week", week,
		"session_count", len(out.Sessions),
		"from_cache", fromCache,
	)
	return out, nil
}

// FixSchedule asks the service to fix (confirm) the schedule for (year, week).
// The returned bool is the service's success flag; an error indicates a
// transport or protocol failure.
func (c *Client) FixSchedule(ctx context.Context, year, week int) (bool, error) {
	var res ActionResult
	payload := map[string]int{"year": year, "week": week}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auto-scheduling/fix", nil, payload, &res); err != nil {
		return false, err
	}
	return res.Success, nil
}

// DeleteAutoScheduling discards the auto-scheduling result for (year, week),
// returning the week to its unscheduled state server-side.
func (c *Client) DeleteAutoScheduling(ctx context.Context, year, week int) (bool, error) {
	var res ActionResult
	q := url.Values{
		"year": {strconv.Itoa(year)},
		"week": {strconv.Itoa(week)},
	}
	if err := c.doJSON(ctx, http.MethodDelete, "/api/auto-scheduling", q, nil, &res); err != nil {
		return false, err
	}
	return res.Success, nil
}

// RequestCancellation asks the service to cancel the session identified by
// the given result-line id. The service's message accompanies both outcomes.
func (c *Client) RequestCancellation(ctx context.Context, lineID int64) (CancellationResult, error) {
	var res CancellationResult
	path := fmt.Sprintf("/api/auto-scheduling/lines/%d/cancel-request", lineID)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, nil, &res); err != nil {
		return res, err
	}
	return res, nil
}

// endpoint joins the base URL with path and query.
func (c *Client) endpoint(path string, q url.Values) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("api: invalid base url: %w", err)
	}
	u.Path, err = url.JoinPath(u.Path, path)
	if err != nil {
		return "", err
	}
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// doJSON performs a request with an optional JSON payload and decodes the
// JSON response into out. Non-2xx statuses are returned as errors.
func (c *Client) doJSON(ctx context.Context, method, path string, q url.Values, payload, out any) error {
	u, err := c.endpoint(path, q)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	c.decorate(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("api: %s %s: %s", method, path, resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

// decorate attaches auth and a per-request correlation id.
func (c *Client) decorate(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("Accept", "application/json")
}

// errStatus converts a non-OK response into an error.
func errStatus(resp *http.Response) error {
	return errors.New(resp.Status)
}
