package api

import "github.com/crashdetector/crashdetector/pkg/types"

// Health states.
const (
	StateOK    = "ok"
	StateStale = "stale"
	StateEmpty = "empty"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State          string      `json:"state"`
	RiskScore      float64     `json:"risk_score"`
	Level          types.Level `json:"level"`
	Color          string      `json:"color,omitempty"`
	DaysRemaining  int         `json:"days_remaining"`
	LastUpdate     string      `json:"last_update,omitempty"`
	AgeSeconds     float64     `json:"age_seconds"`
	MetricCount    int         `json:"metric_count"`
	DataErrorCount int         `json:"data_error_count"`
	HistoryLen     int         `json:"history_len"`
	AlertCount     int         `json:"alert_count"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every WebSocket message.
type SnapshotResponse struct {
	Snapshot    *types.Snapshot  `json:"snapshot"` // null until the agent has written one
	Stale       bool             `json:"stale"`
	AgeSeconds  float64          `json:"age_seconds"`
	Diagnostics []DiagnosticHint `json:"diagnostics"`
	GeneratedAt string           `json:"generated_at"` // RFC3339
}

// HistoryResponse is the payload for GET /api/v1/history.
type HistoryResponse struct {
	Count     int           `json:"count"`
	Snapshots types.History `json:"snapshots"`
}

// MetricPoint is one past observation of a metric.
type MetricPoint struct {
	SnapshotID    string        `json:"snapshot_id,omitempty"`
	Time          string        `json:"time,omitempty"` // RFC3339
	Value         types.Reading `json:"value"`
	Signal        types.Signal  `json:"signal"`
	Volatility24h types.Reading `json:"volatility_24h"`
}

// MetricResponse is the payload for GET /api/v1/metrics/:key.
type MetricResponse struct {
	Key           string           `json:"key"`
	Name          string           `json:"name"`
	Value         types.Reading    `json:"value"`
	Signal        types.Signal     `json:"signal"`
	Volatility24h types.Reading    `json:"volatility_24h"`
	History       []MetricPoint    `json:"history"`
	Diagnostics   []DiagnosticHint `json:"diagnostics"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
