// Package types defines the snapshot model shared by the agent and the server.
//
// A Snapshot is one complete polling cycle: the observed metrics with their
// stress signals, the composite risk assessment and the AI insight text.
// History is the bounded, oldest-first window of past snapshots that the
// agent consults for volatility lookups and the server serves to dashboards.
//
// Metric values are carried as Reading, which is either a number or missing.
// Missing readings encode as JSON null. Decoding also accepts the string form
// written by earlier tracker versions ("151.2300", "4.25%", "DATA ERROR").
package types
