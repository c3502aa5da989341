package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/crashdetector/crashdetector/pkg/types"
)

var levels = []types.Level{
	types.LevelUnknown, types.LevelLow, types.LevelModerate, types.LevelElevated, types.LevelCritical,
}

// Recorder holds the snapshot gauges.
type Recorder struct {
	reg *prometheus.Registry

	riskScore     prometheus.Gauge
	riskLevel     *prometheus.GaugeVec
	daysRemaining prometheus.Gauge
	lastCycle     prometheus.Gauge
	value         *prometheus.GaugeVec
	volatility    *prometheus.GaugeVec
	signal        *prometheus.GaugeVec
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		riskScore: f.NewGauge(prometheus.GaugeOpts{
			Name: "crashdetector_risk_score",
			Help: "Composite risk score of the latest snapshot (0-100).",
		}),
		riskLevel: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crashdetector_risk_level",
			Help: "1 for the current risk level, 0 otherwise.",
		}, []string{"level"}),
		daysRemaining: f.NewGauge(prometheus.GaugeOpts{
			Name: "crashdetector_days_remaining",
			Help: "Days until the target date.",
		}),
		lastCycle: f.NewGauge(prometheus.GaugeOpts{
			Name: "crashdetector_snapshot_timestamp_seconds",
			Help: "Unix time of the latest snapshot.",
		}),
		value: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crashdetector_metric_value",
			Help: "Latest observed value per metric. Absent when the fetch failed.",
		}, []string{"metric"}),
		volatility: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crashdetector_metric_volatility",
			Help: "Absolute move since the previous valid observation.",
		}, []string{"metric"}),
		signal: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crashdetector_metric_signal",
			Help: "1 for the metric's current signal, 0 otherwise.",
		}, []string{"metric", "signal"}),
	}
}

// Registry returns the registry holding the gauges.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Registerer lets callers add their own collectors next to the gauges.
func (r *Recorder) Registerer() prometheus.Registerer { return r.reg }

// Observe sets every gauge from s.
func (r *Recorder) Observe(s *types.Snapshot) {
	r.riskScore.Set(s.RiskAssessment.Score)
	for _, l := range levels {
		r.riskLevel.WithLabelValues(string(l)).Set(boolGauge(l == s.RiskAssessment.Level))
	}
	r.daysRemaining.Set(float64(s.DaysRemaining))
	if t := s.Time(); !t.IsZero() {
		r.lastCycle.Set(float64(t.Unix()))
	}

	for _, m := range s.Metrics {
		key := m.Key
		if key == "" {
			key = types.MetricKey(m.Name)
		}
		if key == "" {
			continue
		}
		setOrDelete(r.value, key, m.Value)
		setOrDelete(r.volatility, key, m.Volatility24h)
		for _, sig := range types.Signals {
			r.signal.WithLabelValues(key, string(sig)).Set(boolGauge(sig == m.Signal))
		}
	}
}

func setOrDelete(v *prometheus.GaugeVec, key string, r types.Reading) {
	if f, ok := r.Get(); ok {
		v.WithLabelValues(key).Set(f)
		return
	}
	v.DeleteLabelValues(key)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
