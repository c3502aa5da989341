// Package store holds the server's in-memory view of the latest snapshot and
// history window, with staleness reporting against a TTL.
package store
