package shipper

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/crashdetector/crashdetector/agent/internal/config"
	"github.com/crashdetector/crashdetector/pkg/types"
)

// fakeWriter records messages and fails the first len(errs) writes.
type fakeWriter struct {
	mu       sync.Mutex
	errs     []error
	calls    int
	received []kafka.Message
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	f.received = append(f.received, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testShipper(w *fakeWriter, attempts int) (*Shipper, *[]time.Duration) {
	s := newShipper(config.KafkaConfig{Topic: "snapshots", Attempts: attempts, Backoff: 10 * time.Millisecond}, w)
	var waits []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return s, &waits
}

func makeSnapshot(id string) *types.Snapshot {
	return &types.Snapshot{
		ID:             id,
		Timestamp:      time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC),
		RiskAssessment: types.RiskAssessment{Score: 25, Level: types.LevelModerate, Color: "#fd7e14"},
		Metrics: []types.MetricObservation{
			{Key: types.KeyUSDJPY, Name: types.NameUSDJPY, Value: types.Value(160.1), Signal: types.SignalCriticalShock},
		},
	}
}

func TestShipper_DeliversSnapshot(t *testing.T) {
	w := &fakeWriter{}
	s, _ := testShipper(w, 3)

	if err := s.Publish(context.Background(), makeSnapshot("snap-1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.received) != 1 {
		t.Fatalf("received %d messages, want 1", len(w.received))
	}
	msg := w.received[0]
	if string(msg.Key) != "snap-1" {
		t.Errorf("key = %q, want snap-1", msg.Key)
	}
	var got types.Snapshot
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("value is not a snapshot: %v", err)
	}
	if got.RiskAssessment.Level != types.LevelModerate {
		t.Errorf("level = %q", got.RiskAssessment.Level)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["level"] != "MODERATE" || headers["score"] != "25.0" {
		t.Errorf("headers = %v", headers)
	}
}

func TestShipper_RetriesTransientErrors(t *testing.T) {
	w := &fakeWriter{errs: []error{errors.New("dial tcp: connection refused"), kafka.LeaderNotAvailable}}
	s, waits := testShipper(w, 3)

	if err := s.Publish(context.Background(), makeSnapshot("snap-2")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if w.calls != 3 {
		t.Errorf("calls = %d, want 3", w.calls)
	}
	if len(*waits) != 2 {
		t.Errorf("waits = %v, want 2 entries", *waits)
	}
}

func TestShipper_GivesUpAfterAttempts(t *testing.T) {
	boom := errors.New("broker down")
	w := &fakeWriter{errs: []error{boom, boom, boom, boom}}
	s, _ := testShipper(w, 2)

	err := s.Publish(context.Background(), makeSnapshot("snap-3"))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped broker error", err)
	}
	if w.calls != 2 {
		t.Errorf("calls = %d, want 2", w.calls)
	}
}

func TestShipper_PermanentErrorNotRetried(t *testing.T) {
	w := &fakeWriter{errs: []error{kafka.MessageSizeTooLarge}}
	s, _ := testShipper(w, 5)

	if err := s.Publish(context.Background(), makeSnapshot("snap-4")); err == nil {
		t.Fatal("expected error")
	}
	if w.calls != 1 {
		t.Errorf("calls = %d, want 1", w.calls)
	}
}

func TestShipper_CancelledContextStops(t *testing.T) {
	w := &fakeWriter{errs: []error{errors.New("timeout"), errors.New("timeout")}}
	s := newShipper(config.KafkaConfig{Topic: "snapshots", Attempts: 5, Backoff: time.Hour}, w)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	if err := s.Publish(ctx, makeSnapshot("snap-5")); err == nil {
		t.Fatal("expected error after cancel")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Publish did not return promptly after cancel")
	}
}

func TestShipper_Close(t *testing.T) {
	w := &fakeWriter{}
	s, _ := testShipper(w, 1)
	if err := s.Close(); err != nil || !w.closed {
		t.Errorf("Close() = %v, closed = %v", err, w.closed)
	}
}

func TestBackoff_Grows(t *testing.T) {
	b := newBackoff(100 * time.Millisecond)
	first := b.next()
	if first > 125*time.Millisecond {
		t.Errorf("first backoff too large: %v", first)
	}
	b.next()
	b.next()
	if b.current != 800*time.Millisecond {
		t.Errorf("current after 3 steps = %v, want 800ms", b.current)
	}
	if newBackoff(0).current != time.Second {
		t.Error("zero initial should default to 1s")
	}
}

func TestBackoff_NeverExceedsMax(t *testing.T) {
	b := newBackoff(time.Second)
	for i := 0; i < 20; i++ {
		if d := b.next(); d > backoffMax*5/4 {
			t.Errorf("backoff[%d] = %v, exceeds max with jitter", i, d)
		}
	}
}
