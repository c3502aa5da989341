// Package receiver moves snapshots from the agent's storage (data.json and
// historical_data.json, or Redis) into the server's in-memory store.
//
// Receiver.Refresh loads the current snapshot, validates that its metric
// names are unique and known (ErrInvalidSnapshot otherwise), loads the
// history window and calls store.Put. When Put reports a new snapshot every
// registered Handler runs; the server uses this to evaluate alerts, update
// the Prometheus gauges and push a WebSocket update.
//
// Receiver.Run polls every interval and, with WithWatchFile, also reloads
// shortly after the file changes.
package receiver
