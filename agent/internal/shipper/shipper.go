package shipper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/crashdetector/crashdetector/agent/internal/config"
	"github.com/crashdetector/crashdetector/pkg/types"
)

const (
	backoffMax        = 30 * time.Second
	backoffMultiplier = 2.0
)

// messageWriter is the subset of *kafka.Writer used by Shipper.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Shipper publishes snapshots to Kafka.
type Shipper struct {
	cfg    config.KafkaConfig
	writer messageWriter
	sleep  func(ctx context.Context, d time.Duration) error // injectable for tests
}

// New returns a Shipper writing to cfg.Topic on cfg.Brokers.
func New(cfg config.KafkaConfig) *Shipper {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  1, // retries are ours
		WriteTimeout: cfg.WriteTimeout,
	}
	return newShipper(cfg, w)
}

func newShipper(cfg config.KafkaConfig, w messageWriter) *Shipper {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Shipper{cfg: cfg, writer: w, sleep: sleepCtx}
}

// Name identifies the sink in logs.
func (s *Shipper) Name() string { return "kafka" }

// Publish writes s to the topic, retrying transient failures.
func (s *Shipper) Publish(ctx context.Context, snap *types.Snapshot) error {
	msg, err := encode(snap)
	if err != nil {
		return fmt.Errorf("shipper: encode: %w", err)
	}

	bo := newBackoff(s.cfg.Backoff)
	for attempt := 1; ; attempt++ {
		err = s.writer.WriteMessages(ctx, msg)
		if err == nil {
			slog.Debug("shipper: snapshot delivered", "id", snap.ID, "topic", s.cfg.Topic, "attempt", attempt)
			return nil
		}
		if isPermanentError(err) || attempt >= s.cfg.Attempts || ctx.Err() != nil {
			return fmt.Errorf("shipper: write to %q after %d attempt(s): %w", s.cfg.Topic, attempt, err)
		}

		wait := bo.next()
		slog.Warn("shipper: write failed, will retry",
			"topic", s.cfg.Topic, "attempt", attempt, "err", err, "retry_in", wait)
		if err := s.sleep(ctx, wait); err != nil {
			return fmt.Errorf("shipper: %w", err)
		}
	}
}

// Close flushes and closes the writer.
func (s *Shipper) Close() error { return s.writer.Close() }

// encode builds the Kafka message for one snapshot.
func encode(snap *types.Snapshot) (kafka.Message, error) {
	value, err := json.Marshal(snap)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(snap.ID),
		Value: value,
		Time:  snap.Timestamp,
		Headers: []kafka.Header{
			{Key: "level", Value: []byte(snap.RiskAssessment.Level)},
			{Key: "score", Value: []byte(strconv.FormatFloat(snap.RiskAssessment.Score, 'f', 1, 64))},
		},
	}, nil
}

// isPermanentError reports whether err is a Kafka protocol error the broker
// will keep returning, such as an unknown topic or an oversized message.
func isPermanentError(err error) bool {
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		return !kerr.Temporary()
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff(initial time.Duration) *backoff {
	if initial <= 0 {
		initial = time.Second
	}
	return &backoff{current: initial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}
