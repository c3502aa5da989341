// Package tracker runs one polling cycle end to end.
//
// RunCycle verifies credentials, loads the history window, fetches every
// metric concurrently, computes volatility for volatility-gated metrics
// against the pre-cycle history, classifies and scores the observations,
// requests AI insights, and assembles a Snapshot. The snapshot is then
// persisted in two independent steps (current, then history) and handed to
// the optional publishers. Only a missing credential or a held distributed
// lock aborts a cycle; every other failure is logged and degrades the
// snapshot instead.
//
// Cycles never overlap: RunCycle holds an in-process mutex and, when a
// store.Locker is configured, a cross-process lock for the duration of the
// cycle.
package tracker
