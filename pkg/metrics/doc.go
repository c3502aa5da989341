// Package metrics mirrors the latest snapshot into Prometheus gauges.
//
// A Recorder owns its registry so the agent (textfile export) and the server
// (/metrics) can each expose exactly the snapshot series without the default
// Go collectors. Metrics whose value is missing have their series removed
// rather than set to zero.
package metrics
