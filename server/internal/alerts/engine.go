package alerts

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/crashdetector/crashdetector/pkg/types"
	"github.com/crashdetector/crashdetector/server/internal/config"
)

const (
	defaultCooldown = 15 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = 24 * time.Hour
	webhookTimeout  = 10 * time.Second
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	SnapshotID string     `json:"snapshot_id,omitempty"`
	Severity   string     `json:"severity"`
	Condition  string     `json:"condition"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

type rule struct {
	config.AlertRule
	cond condition
}

// Engine evaluates alert rules against incoming snapshots and delivers
// webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []rule
	webhooks []config.WebhookConfig
	client   *resty.Client
	now      func() time.Time

	mu       sync.Mutex
	active   map[string]*Alert    // key: rule name
	lastFire map[string]time.Time // last fire time per rule (for cooldown)
	history  []*Alert             // recently resolved alerts

	inflight sync.WaitGroup
}

// New creates an Engine from the server alert configuration. Every rule
// condition is parsed up front; an Engine with no rules is valid and
// Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) (*Engine, error) {
	rules := make([]rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		c, err := parseCondition(r.Condition)
		if err != nil {
			return nil, fmt.Errorf("alerts: rule %q: %w", r.Name, err)
		}
		rules = append(rules, rule{AlertRule: r, cond: c})
	}
	return &Engine{
		rules:    rules,
		webhooks: cfg.Webhooks,
		client: resty.New().
			SetTimeout(webhookTimeout).
			SetHeader("Content-Type", "application/json"),
		now:      time.Now,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
	}, nil
}

// Evaluate tests all configured rules against snap.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// A rule that is already firing keeps its alert and only refreshes the
// reading; a new alert opens after the previous one resolves and the
// cooldown has passed. Alerts whose condition is now false are resolved.
func (e *Engine) Evaluate(snap *types.Snapshot) {
	if len(e.rules) == 0 {
		return
	}

	now := e.now()
	for _, r := range e.rules {
		fires, value := r.cond.eval(snap)

		e.mu.Lock()
		if fires {
			if a, ok := e.active[r.Name]; ok {
				// Same incident: track the latest reading without notifying again.
				a.SnapshotID = snap.ID
				a.Value = value
				a.Message = alertMessage(r, snap, value)
				e.mu.Unlock()
				continue
			}
			cooldown := r.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			last, seen := e.lastFire[r.Name]
			if seen && now.Sub(last) <= cooldown {
				e.mu.Unlock()
				continue
			}
			sev := r.Severity
			if sev == "" {
				sev = "warning"
			}
			a := &Alert{
				ID:         fmt.Sprintf("%s:%d", r.Name, now.UnixNano()),
				RuleName:   r.Name,
				SnapshotID: snap.ID,
				Severity:   sev,
				Condition:  r.Condition,
				Value:      value,
				Message:    alertMessage(r, snap, value),
				FiredAt:    now,
				State:      StateFiring,
			}
			e.active[r.Name] = a
			e.lastFire[r.Name] = now
			alertCopy := *a
			e.mu.Unlock()

			slog.Warn("alerts: fired",
				"rule", r.Name,
				"snapshot_id", snap.ID,
				"value", value,
				"severity", sev,
			)
			e.dispatch(&alertCopy)
			continue
		}

		a, ok := e.active[r.Name]
		if !ok {
			e.mu.Unlock()
			continue
		}
		resolved := now
		a.State = StateResolved
		a.ResolvedAt = &resolved
		delete(e.active, r.Name)

		e.history = append(e.history, a)
		if len(e.history) > maxHistoryLen {
			e.history = e.history[len(e.history)-maxHistoryLen:]
		}
		alertCopy := *a
		e.mu.Unlock()

		slog.Info("alerts: resolved", "rule", r.Name, "snapshot_id", snap.ID)
		e.dispatch(&alertCopy)
	}
}

func alertMessage(r rule, snap *types.Snapshot, value float64) string {
	return fmt.Sprintf("%s fired: %s (value %.2f, risk %s %.1f)", r.Name, r.Condition, value, snap.RiskAssessment.Level, snap.RiskAssessment.Score)
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past day, newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// FiringCount returns the number of currently firing alerts.
func (e *Engine) FiringCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Wait blocks until all in-flight webhook deliveries have finished.
func (e *Engine) Wait() { e.inflight.Wait() }

func (e *Engine) dispatch(a *Alert) {
	if len(e.webhooks) == 0 {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.deliver(a)
	}()
}
