// Package web exposes the local HTTP surface: week board data, trainer and
// member actions, the refresh counter, ICS export, and the rendered board
// preview. It is the daemon's stand-in for the original app's screens.
package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"ptsched/internal/api"
	"ptsched/internal/config"
	"ptsched/internal/export"
	"ptsched/internal/log"
	"ptsched/internal/model"
	"ptsched/internal/refresh"
	"ptsched/internal/schedule"
	"ptsched/internal/weekcal"
)

// RemoteAPI is the slice of the scheduling service the web surface needs:
// the three actions plus ad-hoc week reads. Satisfied by *api.Client.
type RemoteAPI interface {
	schedule.RemoteService
	FetchWeekSessions(ctx context.Context, year, week int) (api.WeekData, error)
}

// Server provides the HTTP API and the board page.
type Server struct {
	cfg     *config.Config
	tracker *schedule.Tracker
	signal  *refresh.Signal
	remote  RemoteAPI
	now     func() time.Time
	mux     *http.ServeMux

	// In-memory cache for /api/week responses. Valid only while no refresh
	// has fired since it was built; a short TTL bounds staleness from
	// server-side changes the signal cannot see.
	weekMu    sync.RWMutex
	weekCache *weekCache
}

// embeddedStatic contains the board page served at / and captured by the
// snapshot pipeline.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a Server. now may be nil (defaults to time.Now).
func NewServer(cfg *config.Config, tracker *schedule.Tracker, signal *refresh.Signal, remote RemoteAPI, now func() time.Time) *Server {
	if now == nil {
		now = time.Now
	}
	s := &Server{
		cfg:     cfg,
		tracker: tracker,
		signal:  signal,
		remote:  remote,
		now:     now,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler, wrapped with basic auth when
// configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		log.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password counts as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="ptsched", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/week", s.handleWeek)
	s.mux.HandleFunc("/api/week/confirm", s.handleConfirm)
	s.mux.HandleFunc("/api/week/reset", s.handleReset)
	s.mux.HandleFunc("/api/session/select", s.handleSelect)
	s.mux.HandleFunc("/api/session/cancel", s.handleCancel)
	s.mux.HandleFunc("/api/slot-grid", s.handleSlotGrid)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("/preview.png", s.handlePreview)

	// The embedded board page covers every other path.
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// weekResponse is the JSON shape of /api/week.
type weekResponse struct {
	Year       int                         `json:"year"`
	Week       int                         `json:"week"`
	RangeStart string                      `json:"range_start"`
	RangeEnd   string                      `json:"range_end"`
	Status     model.WeekStatus            `json:"status"`
	Statuses   map[string]model.WeekStatus `json:"statuses"`
	Sessions   []sessionDTO                `json:"sessions"`
	IsCurrent  bool                        `json:"is_current"`
	IsNext     bool                        `json:"is_next"`
	IsEditable bool                        `json:"is_editable"`
}

// sessionDTO is a JSON-friendly view of a session.
type sessionDTO struct {
	MemberID     string `json:"member_id"`
	MemberName   string `json:"member_name"`
	MemberPhone  string `json:"member_phone"`
	Hour         int    `json:"hour"`
	Day          string `json:"day"`
	Week         int    `json:"week"`
	ResultLineID *int64 `json:"result_line_id,omitempty"`
	Cancellable  bool   `json:"cancellable"`
}

// weekCache holds a cached /api/week response with its validity markers.
type weekCache struct {
	resp      weekResponse
	seq       uint64
	updatedAt time.Time
}

const weekCacheTTL = 30 * time.Second

// handleWeek returns the board data for a week. Without query parameters it
// serves the tracker's loaded week; explicit ?year=&week= values outside the
// loaded week are fetched from the service on the fly.
func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := s.now()

	q := r.URL.Query()
	year := parseIntDefault(q.Get("year"), s.tracker.Year())
	week := parseIntDefault(q.Get("week"), s.tracker.Week())
	if year == 0 || week == 0 {
		year, week = weekcal.NextWeekYearAndWeek(now)
	}

	if year == s.tracker.Year() && week == s.tracker.Week() {
		seq := s.signal.Count()
		cacheNow := time.Now()

		s.weekMu.RLock()
		wc := s.weekCache
		s.weekMu.RUnlock()
		if wc != nil && wc.seq == seq && cacheNow.Sub(wc.updatedAt) < weekCacheTTL {
			writeJSON(w, http.StatusOK, wc.resp)
			return
		}

		resp := s.buildWeekResponse(now, year, week, s.tracker.Sessions(), s.tracker.Statuses())

		s.weekMu.Lock()
		s.weekCache = &weekCache{resp: resp, seq: seq, updatedAt: time.Now()}
		s.weekMu.Unlock()

		writeJSON(w, http.StatusOK, resp)
		return
	}

	// Ad-hoc week: read through to the service without touching the tracker.
	data, err := s.remote.FetchWeekSessions(ctx, year, week)
	if err != nil {
		log.Error("ad-hoc week fetch failed", err, "year", year, "week", week)
		writeError(w, http.StatusBadGateway, "failed to fetch week")
		return
	}
	statuses := s.tracker.Statuses()
	for wk, st := range data.Statuses {
		statuses[wk] = st
	}
	writeJSON(w, http.StatusOK, s.buildWeekResponse(now, year, week, data.Sessions, statuses))
}

func (s *Server) buildWeekResponse(now time.Time, year, week int, sessions []model.Session, statuses map[int]model.WeekStatus) weekResponse {
	start, end := weekcal.WeekDateRange(year, week)

	status := model.StatusPlaceholder
	if st, ok := statuses[week]; ok {
		status = st
	}

	statusesDTO := make(map[string]model.WeekStatus, len(statuses))
	for wk, st := range statuses {
		statusesDTO[strconv.Itoa(wk)] = st
	}

	dtos := make([]sessionDTO, 0, len(sessions))
	for _, sess := range sessions {
		dtos = append(dtos, sessionDTO{
			MemberID:     sess.MemberID,
			MemberName:   sess.MemberName,
			MemberPhone:  sess.MemberPhone,
			Hour:         sess.Hour,
			Day:          sess.Day,
			Week:         sess.Week,
			ResultLineID: sess.ResultLineID,
			Cancellable:  sess.Cancellable(),
		})
	}

	return weekResponse{
		Year:       year,
		Week:       week,
		RangeStart: weekcal.FormatShortDate(start),
		RangeEnd:   weekcal.FormatShortDate(end),
		Status:     status,
		Statuses:   statusesDTO,
		Sessions:   dtos,
		IsCurrent:  weekcal.IsCurrentWeek(now, week),
		IsNext:     weekcal.IsNextWeek(now, week),
		IsEditable: weekcal.IsEditable(now, week),
	}
}

// actionRequest is the body of the confirm/reset endpoints.
type actionRequest struct {
	Year int `json:"year"`
	Week int `json:"week"`
}

// actionResponse reports every notice an action surfaced, plus navigation
// when the action requested it. ok mirrors whether a success notice fired.
type actionResponse struct {
	OK       bool          `json:"ok"`
	Notices  []notice      `json:"notices"`
	Navigate *navigateInfo `json:"navigate,omitempty"`
}

type notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type navigateInfo struct {
	Route       string `json:"route"`
	WeekToReset int    `json:"week_to_reset"`
	ResetMode   bool   `json:"reset_mode"`
}

// noticeRecorder collects action notices for the HTTP response.
type noticeRecorder struct {
	notices []notice
	ok      bool
}

func (n *noticeRecorder) Success(msg string) {
	n.ok = true
	n.notices = append(n.notices, notice{Level: "success", Message: msg})
}

func (n *noticeRecorder) Failure(msg string) {
	n.notices = append(n.notices, notice{Level: "failure", Message: msg})
}

// navRecorder records the navigation an action requested.
type navRecorder struct {
	target *navigateInfo
}

func (n *navRecorder) Navigate(route string, params schedule.NavParams) {
	n.target = &navigateInfo{
		Route:       route,
		WeekToReset: params.WeekToReset,
		ResetMode:   params.ResetMode,
	}
}

// newPlanner builds a per-request Planner bound to the request's recorders.
// Planner state lives in the shared tracker/signal; the planner itself is
// cheap glue.
func (s *Server) newPlanner(n *noticeRecorder, nav *navRecorder) *schedule.Planner {
	flag := func() bool { return s.cfg.NextWeekScheduling }
	return schedule.NewPlanner(s.remote, s.tracker, s.signal, n, nav, s.cfg.AccountID, flag, s.now)
}

func (s *Server) requireRole(w http.ResponseWriter, role config.Role) bool {
	if s.cfg.Role != role {
		writeError(w, http.StatusForbidden, "not permitted for this role")
		return false
	}
	return true
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if !s.requireRole(w, config.RoleTrainer) {
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	n, nav := &noticeRecorder{}, &navRecorder{}
	s.newPlanner(n, nav).ConfirmWeek(r.Context(), req.Year, req.Week)
	writeJSON(w, http.StatusOK, actionResponse{OK: n.ok, Notices: n.notices})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if !s.requireRole(w, config.RoleTrainer) {
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	n, nav := &noticeRecorder{}, &navRecorder{}
	s.newPlanner(n, nav).ResetWeek(r.Context(), req.Year, req.Week)
	writeJSON(w, http.StatusOK, actionResponse{OK: n.ok, Notices: n.notices, Navigate: nav.target})
}

// selectRequest identifies a session by its position in the current week.
type selectRequest struct {
	Day  string `json:"day"`
	Hour int    `json:"hour"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if !s.requireRole(w, config.RoleMember) {
		return
	}

	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	for _, sess := range s.tracker.Sessions() {
		if sess.Day == req.Day && sess.Hour == req.Hour {
			s.tracker.Select(sess)
			writeJSON(w, http.StatusOK, map[string]bool{"selected": true})
			return
		}
	}
	writeError(w, http.StatusNotFound, "no session at that slot")
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if !s.requireRole(w, config.RoleMember) {
		return
	}

	n, nav := &noticeRecorder{}, &navRecorder{}
	s.newPlanner(n, nav).CancelSession(r.Context())
	writeJSON(w, http.StatusOK, actionResponse{OK: n.ok, Notices: n.notices})
}

// slotGridRequest carries the projection inputs.
type slotGridRequest struct {
	Periodic []model.PeriodicSlot `json:"periodic"`
	OneTime  []model.OneTimeSlot  `json:"onetime"`
}

func (s *Server) handleSlotGrid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req slotGridRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	writeJSON(w, http.StatusOK, schedule.BuildSlotGrid(req.Periodic, req.OneTime))
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"count": s.signal.Count()})
}

// handleCalendar serves the week's sessions as ICS. With ?recurring=1 it
// instead serves the configured standing slots as weekly-recurring events
// anchored in the loaded week.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	loc := resolveLocationOrLocal(s.cfg.Timezone)

	var out string
	var err error
	if r.URL.Query().Get("recurring") == "1" {
		out, err = export.RecurringCalendar(s.tracker.Year(), s.tracker.Week(), s.recurringSlots(), loc)
	} else {
		out, err = export.WeekCalendar(s.tracker.Year(), s.tracker.Week(), s.tracker.Sessions(), loc)
	}
	if err != nil {
		log.Error("calendar export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build calendar")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

// recurringSlots resolves the configured slot list to periodic slots,
// skipping entries with unknown day labels.
func (s *Server) recurringSlots() []model.PeriodicSlot {
	slots := make([]model.PeriodicSlot, 0, len(s.cfg.Slots))
	for _, sl := range s.cfg.Slots {
		wd, ok := model.LabelWeekday(sl.Day)
		if !ok {
			log.Info("skipping slot with unknown day label", "day", sl.Day)
			continue
		}
		slots = append(slots, model.PeriodicSlot{Weekday: wd, Hour: sl.Hour})
	}
	return slots
}

// handlePreview serves the last rendered board PNG from the data dir; the
// path matches the capture pipeline in cmd/ptsched.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.cfg.DataDir, "preview.png"))
}

// staticFileServer serves the embedded board page. API paths never fall
// through to it; a missing API handler must 404, not return HTML.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		log.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "board page not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
