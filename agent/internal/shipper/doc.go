// Package shipper publishes each snapshot to a Kafka topic.
//
// Messages are keyed by snapshot ID and carry the JSON-encoded snapshot as
// the value, plus "level" and "score" headers so consumers can filter
// without decoding. Publish retries transient broker errors with truncated
// exponential backoff (±25% jitter) for a bounded number of attempts;
// non-temporary Kafka errors fail immediately.
//
// The writer is behind the messageWriter interface so tests substitute an
// in-memory fake for *kafka.Writer.
package shipper
