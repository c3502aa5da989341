package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	persist "github.com/crashdetector/crashdetector/pkg/store"
	"github.com/crashdetector/crashdetector/pkg/types"
	"github.com/crashdetector/crashdetector/server/internal/store"
)

// ErrInvalidSnapshot means the persisted snapshot failed validation and was
// not accepted into the store.
var ErrInvalidSnapshot = errors.New("receiver: invalid snapshot")

// settle is how long the watcher waits after the last file event before
// reloading, so a write burst triggers one refresh.
const settle = 200 * time.Millisecond

// Handler is called once for every newly accepted snapshot.
type Handler func(s *types.Snapshot)

// Receiver loads what the agent persisted into the server's in-memory
// store. It polls the shared store and, for the file backend, also watches
// the current-snapshot file so a finished cycle shows up at once.
type Receiver struct {
	src      persist.Store
	mem      *store.Store
	interval time.Duration
	watch    string
	handlers []Handler
}

// Option configures a Receiver.
type Option func(*Receiver)

// WithWatchFile reloads whenever path changes, in addition to polling.
func WithWatchFile(path string) Option {
	return func(r *Receiver) { r.watch = path }
}

// WithHandler registers fn to run on each newly accepted snapshot.
func WithHandler(fn Handler) Option {
	return func(r *Receiver) { r.handlers = append(r.handlers, fn) }
}

// New creates a Receiver that copies from src into mem every interval.
func New(src persist.Store, mem *store.Store, interval time.Duration, opts ...Option) *Receiver {
	r := &Receiver{src: src, mem: mem, interval: interval}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Refresh loads the current snapshot and history and stores them. It reports
// whether the snapshot was new, in which case every handler has run. An empty
// source is not an error. A history load failure keeps the previous window.
func (r *Receiver) Refresh(ctx context.Context) (bool, error) {
	snap, err := r.src.LoadCurrent(ctx)
	if errors.Is(err, persist.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("receiver: load current: %w", err)
	}
	if err := validate(snap); err != nil {
		return false, err
	}

	hist, err := r.src.LoadHistory(ctx)
	if err != nil {
		slog.Warn("receiver: load history failed, keeping previous window", "err", err)
		hist = r.mem.History()
	}

	if !r.mem.Put(*snap, hist) {
		return false, nil
	}

	slog.Info("receiver: snapshot loaded",
		"snapshot_id", snap.ID,
		"last_update", snap.LastUpdate,
		"level", snap.RiskAssessment.Level,
		"score", snap.RiskAssessment.Score,
		"history", len(hist),
	)
	for _, h := range r.handlers {
		h(snap)
	}
	return true, nil
}

// Run refreshes once, then on every tick and file change until ctx is
// cancelled. Refresh failures are logged and retried on the next trigger.
func (r *Receiver) Run(ctx context.Context) error {
	r.refresh(ctx)

	var (
		events  <-chan fsnotify.Event
		errs    <-chan error
		target  string
		pending <-chan time.Time
	)
	if r.watch != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("receiver: watcher: %w", err)
		}
		defer watcher.Close()

		target, err = filepath.Abs(r.watch)
		if err != nil {
			return fmt.Errorf("receiver: watch path: %w", err)
		}
		if err := watcher.Add(filepath.Dir(target)); err != nil {
			return fmt.Errorf("receiver: watch %q: %w", filepath.Dir(target), err)
		}
		events, errs = watcher.Events, watcher.Errors
		slog.Info("receiver: watching", "path", target)
	}

	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-t.C:
			r.refresh(ctx)

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.After(settle)
			}

		case <-pending:
			pending = nil
			r.refresh(ctx)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Error("receiver: watcher error", "err", err)
		}
	}
}

func (r *Receiver) refresh(ctx context.Context) {
	if _, err := r.Refresh(ctx); err != nil {
		slog.Error("receiver: refresh failed", "err", err)
	}
}

// validate checks the snapshot invariants the server relies on: metric
// names are unique and drawn from the tracked set.
func validate(s *types.Snapshot) error {
	seen := make(map[string]bool, len(s.Metrics))
	for _, m := range s.Metrics {
		key := m.Key
		if key == "" {
			key = types.MetricKey(m.Name)
		}
		if key == "" || types.MetricName(key) != m.Name {
			return fmt.Errorf("%w: unknown metric %q", ErrInvalidSnapshot, m.Name)
		}
		if seen[key] {
			return fmt.Errorf("%w: duplicate metric %q", ErrInvalidSnapshot, m.Name)
		}
		seen[key] = true
	}
	return nil
}
