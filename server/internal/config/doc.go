// Package config loads the server-side configuration from the `server:` section
// of config.yaml.
//
// Config fields:
//   - HTTPPort          — port for the REST API, WebSocket hub and /metrics (default 8080)
//   - Storage           — where the agent writes snapshots; falls back to agent.storage
//   - Refresh.Interval  — how often the store is re-read (default 30s)
//   - Snapshot.TTL      — age after which the latest snapshot is reported stale (default 48h)
//   - Stream.Interval   — WebSocket broadcast period (default 5s)
//   - Alerts            — rules evaluated on every new snapshot, plus webhook targets
//
// Load(path) applies defaults, resolves storage, then validates.
package config
