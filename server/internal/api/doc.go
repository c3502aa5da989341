// Package api implements the HTTP REST API for the crashdetector server.
//
// New(store, alerts, gatherer) returns an *echo.Echo that serves:
//
//	GET /api/v1/health        — risk score, level, freshness and counts
//	GET /api/v1/snapshot      — latest snapshot, stale flag and diagnostic hints
//	GET /api/v1/history       — history window, oldest first (?limit=N keeps the newest N)
//	GET /api/v1/metrics/:key  — one metric with its trend over the window; 404 if unknown
//	GET /api/v1/alerts        — firing and recently resolved alerts
//	GET /metrics              — Prometheus exposition of the snapshot gauges
//
// All API endpoints respond with Content-Type: application/json; errors use
// {"error": "..."}. Non-GET methods get 405 from the router.
//
// JSON types are defined in types.go.
package api
