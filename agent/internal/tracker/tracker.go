package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/crashdetector/crashdetector/agent/internal/compute"
	"github.com/crashdetector/crashdetector/agent/internal/insights"
	"github.com/crashdetector/crashdetector/agent/internal/scraper"
	"github.com/crashdetector/crashdetector/pkg/store"
	"github.com/crashdetector/crashdetector/pkg/types"
)

var (
	// ErrMissingCredential aborts a cycle before any fetch.
	ErrMissingCredential = errors.New("tracker: missing required credential")
	// ErrLocked means another process is running a cycle.
	ErrLocked = errors.New("tracker: cycle lock held elsewhere")
)

const lockKey = "cycle"

// Publisher receives every completed snapshot. Failures are logged only.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, s *types.Snapshot) error
}

// Settings is the per-cycle configuration. It is copied on every
// Reconfigure and never mutated afterwards.
type Settings struct {
	TargetDate   time.Time
	HistoryLimit int
	Concurrency  int
	LockTTL      time.Duration
	FinancialKey string
	Thresholds   compute.Thresholds
	Palette      compute.Palette
}

// Tracker assembles snapshots.
type Tracker struct {
	mu sync.Mutex // held for the whole cycle

	store      store.Store
	locker     store.Locker
	generator  insights.Generator
	publishers []Publisher

	scrapers   []scraper.Scraper
	settings   Settings
	classifier *compute.Classifier

	now   func() time.Time
	newID func() string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLocker enables the cross-process cycle lock.
func WithLocker(l store.Locker) Option { return func(t *Tracker) { t.locker = l } }

// WithPublishers adds snapshot sinks.
func WithPublishers(p ...Publisher) Option {
	return func(t *Tracker) { t.publishers = append(t.publishers, p...) }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

// New returns a Tracker. A nil generator disables insights.
func New(st store.Store, scrapers []scraper.Scraper, gen insights.Generator, s Settings, opts ...Option) *Tracker {
	t := &Tracker{
		store:     st,
		generator: gen,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	t.apply(scrapers, s)
	for _, o := range opts {
		o(t)
	}
	return t
}

// Reconfigure replaces the scrapers and settings used from the next cycle on.
// A cycle in progress finishes with the old values.
func (t *Tracker) Reconfigure(scrapers []scraper.Scraper, s Settings) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.apply(scrapers, s)
}

func (t *Tracker) apply(scrapers []scraper.Scraper, s Settings) {
	if s.HistoryLimit <= 0 {
		s.HistoryLimit = types.DefaultHistoryLimit
	}
	if s.Concurrency <= 0 {
		s.Concurrency = 1
	}
	if s.LockTTL <= 0 {
		s.LockTTL = 10 * time.Minute
	}
	if s.Thresholds == nil {
		s.Thresholds = compute.DefaultThresholds()
	}
	if s.Palette == nil {
		s.Palette = compute.DefaultPalette()
	}
	t.scrapers = append([]scraper.Scraper(nil), scrapers...)
	t.settings = s
	t.classifier = compute.NewClassifier(s.Thresholds)
}

// RunCycle performs one polling cycle and returns the assembled snapshot.
func (t *Tracker) RunCycle(ctx context.Context) (*types.Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.newID()
	log := slog.With("run_id", id)
	s := t.settings

	if s.FinancialKey == "" {
		log.Error("tracker: financial api key not set, aborting cycle")
		return nil, ErrMissingCredential
	}

	if t.locker != nil {
		ok, err := t.locker.TryLock(ctx, lockKey, s.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("tracker: acquire lock: %w", err)
		}
		if !ok {
			log.Warn("tracker: another process holds the cycle lock")
			return nil, ErrLocked
		}
		defer func() {
			unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := t.locker.Unlock(unlockCtx, lockKey); err != nil {
				log.Warn("tracker: release lock", "err", err)
			}
		}()
	}

	start := t.now()
	log.Info("tracker: cycle started", "metrics", len(t.scrapers))

	history, err := t.store.LoadHistory(ctx)
	if err != nil {
		log.Warn("tracker: history unavailable, using empty window", "err", err)
		history = types.History{}
	}

	results := t.fetchAll(ctx, s.Concurrency)
	metrics := t.observe(results, history, s)
	risk := compute.Score(metrics, s.Palette)
	ai := t.generateInsights(ctx, metrics, log)

	now := t.now().UTC()
	snap := &types.Snapshot{
		ID:             id,
		Timestamp:      now,
		LastUpdate:     now.Format(types.LastUpdateLayout),
		TargetDate:     s.TargetDate.Format(types.TargetDateLayout),
		DaysRemaining:  DaysRemaining(now, s.TargetDate),
		RiskAssessment: risk,
		Metrics:        metrics,
		AIInsights:     ai,
	}

	if err := t.store.WriteCurrent(ctx, snap); err != nil {
		log.Error("tracker: write current snapshot failed", "err", err)
	}
	if err := t.store.AppendHistory(ctx, snap, s.HistoryLimit); err != nil {
		log.Error("tracker: append history failed", "err", err)
	}
	for _, p := range t.publishers {
		if err := p.Publish(ctx, snap); err != nil {
			log.Warn("tracker: publish failed", "sink", p.Name(), "err", err)
		}
	}

	log.Info("tracker: cycle complete",
		"score", risk.Score,
		"level", risk.Level,
		"data_errors", countSignal(metrics, types.SignalDataError),
		"elapsed", t.now().Sub(start))
	return snap, nil
}

// fetchAll runs every scraper with at most limit in flight. Results are in
// scraper order.
func (t *Tracker) fetchAll(ctx context.Context, limit int) []*scraper.Result {
	results := make([]*scraper.Result, len(t.scrapers))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, sc := range t.scrapers {
		g.Go(func() error {
			results[i] = sc.Scrape(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// observe turns fetch results into classified observations.
func (t *Tracker) observe(results []*scraper.Result, history types.History, s Settings) []types.MetricObservation {
	out := make([]types.MetricObservation, 0, len(results))
	for i, res := range results {
		key := t.scrapers[i].Metric()
		value := types.Missing()
		if res != nil && res.Err == nil {
			value = res.Value
		}
		name := types.MetricName(key)

		vol := types.Missing()
		if s.Thresholds.VolatilityGated(key) {
			vol = compute.Volatility(value, history, name)
		}

		out = append(out, types.MetricObservation{
			Key:           key,
			Name:          name,
			Value:         value,
			Signal:        t.classifier.Classify(key, value, vol),
			Volatility24h: vol,
		})
	}
	return out
}

func (t *Tracker) generateInsights(ctx context.Context, metrics []types.MetricObservation, log *slog.Logger) types.Insights {
	if t.generator == nil {
		return insights.Resolve(types.Insights{}, insights.ErrDisabled)
	}
	ins, err := t.generator.Generate(ctx, metrics)
	if err != nil {
		log.Warn("tracker: insights unavailable", "err", err)
	}
	return insights.Resolve(ins, err)
}

// DaysRemaining returns the whole days from now until target, rounded down.
// It is negative once target has passed.
func DaysRemaining(now, target time.Time) int {
	return int(math.Floor(target.Sub(now).Hours() / 24))
}

func countSignal(metrics []types.MetricObservation, s types.Signal) int {
	n := 0
	for _, m := range metrics {
		if m.Signal == s {
			n++
		}
	}
	return n
}
