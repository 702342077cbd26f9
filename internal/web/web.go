package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"weekcal/internal/config"
	appLog "weekcal/internal/log"
	"weekcal/internal/model"
	"weekcal/internal/period"
	"weekcal/internal/refresh"
	"weekcal/internal/scheduler"
)

const (
	maxDays       = 42
	staleAttempts = 3
)

// Engine is the part of the scheduler the HTTP layer drives.
type Engine interface {
	LoadEventsIfNecessary(ctx context.Context, days []time.Time) error
	ChipsFor(days []time.Time) []model.EventChip
}

// Options wires optional collaborators into the Server.
type Options struct {
	// Refresh receives POST /api/refresh. Nil disables the endpoint.
	Refresh refresh.Target
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Now is the clock for default ranges; nil means time.Now.
	Now func() time.Time
}

// Server exposes the laid-out chips of the visible days as JSON.
type Server struct {
	cfg    *config.Config
	engine Engine
	opts   Options
	loc    *time.Location
	mux    *http.ServeMux
}

func NewServer(cfg *config.Config, engine Engine, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		cfg:    cfg,
		engine: engine,
		opts:   opts,
		loc:    cfg.Location(),
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the router, wrapped in Basic Auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/layout", s.handleLayout)
	if s.opts.Refresh != nil {
		s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	}
	if s.opts.Gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware protects every path except /health.
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
			w.Header().Set("WWW-Authenticate", `Basic realm="weekcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.opts.Refresh.RequestRefresh()
	appLog.Info("refresh requested via API")
	writeJSON(w, http.StatusAccepted, map[string]bool{"refresh_requested": true})
}

// LayoutResponse is the JSON shape of /api/layout.
type LayoutResponse struct {
	RangeStart string    `json:"range_start"`
	Days       int       `json:"days"`
	TimeZone   string    `json:"timezone"`
	MinHour    int       `json:"min_hour"`
	Chips      []ChipDTO `json:"chips"`
}

// ChipDTO is one laid-out event.
type ChipDTO struct {
	SourceID string    `json:"source_id"`
	UID      string    `json:"uid"`
	Summary  string    `json:"summary"`
	Location string    `json:"location,omitempty"`
	AllDay   bool      `json:"all_day"`
	Day      string    `json:"day"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Left     float64   `json:"left"`
	Width    float64   `json:"width"`
	Top      int       `json:"top"`
	Bottom   int       `json:"bottom"`
}

// handleLayout serves GET /api/layout?date=YYYY-MM-DD&days=N.
//   - date: first visible day (default: start of the current week)
//   - days: number of visible days (default: config visible_days, max 42)
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, err := s.RangeStart(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	n := parseIntDefault(q.Get("days"), s.cfg.VisibleDays)
	if n <= 0 || n > maxDays {
		writeError(w, http.StatusBadRequest, "days must be between 1 and 42")
		return
	}
	resp, err := s.Layout(r.Context(), start, n)
	if errors.Is(err, scheduler.ErrRangeTooWide) {
		writeError(w, http.StatusBadRequest, "days span more periods than the cache holds")
		return
	}
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, scheduler.ErrNoLoader) || errors.Is(err, scheduler.ErrNoIndex) {
			status = http.StatusInternalServerError
		}
		appLog.Error("api layout: load failed", err, "range_start", start.Format(time.DateOnly), "days", n)
		writeError(w, status, "failed to load events")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Layout loads the n days starting at start and returns their chips.
func (s *Server) Layout(ctx context.Context, start time.Time, n int) (LayoutResponse, error) {
	days := period.Days(start, n)
	if err := s.load(ctx, days); err != nil {
		return LayoutResponse{}, err
	}

	resp := LayoutResponse{
		RangeStart: start.Format(time.DateOnly),
		Days:       n,
		TimeZone:   s.loc.String(),
		MinHour:    s.cfg.MinHour,
		Chips:      make([]ChipDTO, 0),
	}
	for _, c := range s.engine.ChipsFor(days) {
		resp.Chips = append(resp.Chips, toDTO(c))
	}
	return resp, nil
}

// load retries a few times when a concurrent request for another period
// superseded ours.
func (s *Server) load(ctx context.Context, days []time.Time) error {
	var err error
	for attempt := 0; attempt < staleAttempts; attempt++ {
		err = s.engine.LoadEventsIfNecessary(ctx, days)
		if !errors.Is(err, scheduler.ErrStale) {
			return err
		}
		appLog.Debug("api layout: stale load, retrying", "attempt", attempt+1)
	}
	return err
}

// RangeStart parses raw as YYYY-MM-DD in the display timezone. An empty
// raw yields the first day of the current week.
func (s *Server) RangeStart(raw string) (time.Time, error) {
	if raw != "" {
		return time.ParseInLocation(time.DateOnly, raw, s.loc)
	}
	now := s.opts.Now().In(s.loc)
	back := (int(now.Weekday()) - int(s.cfg.FirstWeekday()) + 7) % 7
	y, m, d := now.Date()
	return time.Date(y, m, d-back, 0, 0, 0, 0, s.loc), nil
}

func toDTO(c model.EventChip) ChipDTO {
	return ChipDTO{
		SourceID: c.Event.SourceID,
		UID:      c.Event.UID,
		Summary:  c.Event.Summary,
		Location: c.Event.Location,
		AllDay:   c.Event.AllDay,
		Day:      c.Event.Start.Format(time.DateOnly),
		Start:    c.Event.Start,
		End:      c.Event.End,
		Left:     c.Rect.Left,
		Width:    c.Rect.Width,
		Top:      c.Rect.Top,
		Bottom:   c.Rect.Bottom,
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}
