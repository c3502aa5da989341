package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crashdetector/crashdetector/pkg/types"
	"github.com/crashdetector/crashdetector/server/internal/alerts"
	"github.com/crashdetector/crashdetector/server/internal/store"
)

// Handler serves the /api/v1/* endpoints from the snapshot store.
type Handler struct {
	store  *store.Store
	alerts *alerts.Engine
}

// New creates the HTTP router: the REST API, plus /metrics when gatherer is
// non-nil. ae may be nil, in which case /api/v1/alerts is always empty.
// Callers mount further routes (the WebSocket hub) on the returned Echo.
func New(st *store.Store, ae *alerts.Engine, gatherer prometheus.Gatherer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler
	e.Use(recoverer(), requestLogger(), cors())

	h := &Handler{store: st, alerts: ae}
	h.RegisterRoutes(e)

	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return e
}

// RegisterRoutes mounts the API on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/health", h.health)
	g.GET("/snapshot", h.snapshot)
	g.GET("/history", h.history)
	g.GET("/metrics/:key", h.metric)
	g.GET("/alerts", h.listAlerts)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: the headline numbers and freshness.
func (h *Handler) health(c echo.Context) error {
	resp := HealthResponse{
		HistoryLen: len(h.store.History()),
		AlertCount: h.firingCount(),
		Level:      types.LevelUnknown,
	}

	e, ok := h.store.Latest()
	if !ok {
		resp.State = StateEmpty
		return c.JSON(http.StatusOK, resp)
	}

	snap := e.Snapshot
	resp.State = StateOK
	if h.store.Stale() {
		resp.State = StateStale
	}
	resp.RiskScore = snap.RiskAssessment.Score
	resp.Level = snap.RiskAssessment.Level
	resp.Color = snap.RiskAssessment.Color
	resp.DaysRemaining = snap.DaysRemaining
	resp.LastUpdate = snap.LastUpdate
	resp.AgeSeconds = h.store.Age().Seconds()
	resp.MetricCount = len(snap.Metrics)
	for _, m := range snap.Metrics {
		if m.Signal == types.SignalDataError {
			resp.DataErrorCount++
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// snapshot returns GET /api/v1/snapshot: the latest snapshot with diagnostics.
func (h *Handler) snapshot(c echo.Context) error {
	return c.JSON(http.StatusOK, BuildSnapshot(h.store))
}

// history returns GET /api/v1/history[?limit=N]: the window, oldest first.
func (h *Handler) history(c echo.Context) error {
	limit := 0
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
		return jsonErr(c, http.StatusBadRequest, "limit must be an integer")
	}
	if limit < 0 {
		return jsonErr(c, http.StatusBadRequest, "limit must not be negative")
	}

	hist := h.store.History().Trim(limit)
	if hist == nil {
		hist = types.History{}
	}
	return c.JSON(http.StatusOK, HistoryResponse{Count: len(hist), Snapshots: hist})
}

// metric returns GET /api/v1/metrics/:key: one metric with its trend.
func (h *Handler) metric(c echo.Context) error {
	key := c.Param("key")
	name := types.MetricName(key)
	if name == "" {
		return jsonErr(c, http.StatusNotFound, fmt.Sprintf("unknown metric %q", key))
	}

	e, ok := h.store.Latest()
	if !ok {
		return jsonErr(c, http.StatusNotFound, "no snapshot yet")
	}
	m, ok := e.Snapshot.Metric(key)
	if !ok {
		return jsonErr(c, http.StatusNotFound, fmt.Sprintf("metric %q not in latest snapshot", key))
	}

	resp := MetricResponse{
		Key:           key,
		Name:          name,
		Value:         m.Value,
		Signal:        m.Signal,
		Volatility24h: m.Volatility24h,
		History:       make([]MetricPoint, 0),
		Diagnostics:   make([]DiagnosticHint, 0),
	}
	for _, s := range h.store.History() {
		pm, ok := s.Metric(key)
		if !ok {
			continue
		}
		p := MetricPoint{SnapshotID: s.ID, Value: pm.Value, Signal: pm.Signal, Volatility24h: pm.Volatility24h}
		if t := s.Time(); !t.IsZero() {
			p.Time = t.UTC().Format(time.RFC3339)
		}
		resp.History = append(resp.History, p)
	}
	if hint, ok := metricHint(m); ok {
		resp.Diagnostics = append(resp.Diagnostics, hint)
	}
	return c.JSON(http.StatusOK, resp)
}

// listAlerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) listAlerts(c echo.Context) error {
	if h.alerts == nil {
		return c.JSON(http.StatusOK, []*alerts.Alert{})
	}
	return c.JSON(http.StatusOK, h.alerts.Active())
}

// --- helpers ----------------------------------------------------------------

// BuildSnapshot assembles the snapshot payload shared by the REST API and
// the WebSocket hub.
func BuildSnapshot(st *store.Store) SnapshotResponse {
	resp := SnapshotResponse{
		Stale:       st.Stale(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if e, ok := st.Latest(); ok {
		snap := e.Snapshot
		resp.Snapshot = &snap
		resp.AgeSeconds = st.Age().Seconds()
	}
	resp.Diagnostics = computeDiagnostics(resp.Snapshot, resp.Stale && resp.Snapshot != nil, st.Age(), st.TTL())
	return resp
}

func (h *Handler) firingCount() int {
	if h.alerts == nil {
		return 0
	}
	return h.alerts.FiringCount()
}

func jsonErr(c echo.Context, code int, msg string) error {
	return c.JSON(code, errorResponse{Error: msg})
}

// errorHandler renders router and handler errors in the API's error shape.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := "internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	_ = c.JSON(code, errorResponse{Error: msg})
}
