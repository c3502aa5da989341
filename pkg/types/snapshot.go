package types

import "time"

// Keys of the tracked metrics. Keys are stable identifiers used in config,
// alert rules and API paths; Names are the display labels stored in snapshots.
const (
	KeyUSDJPY    = "usd_jpy"
	KeyUSDCNH    = "usd_cnh"
	KeyMOVEProxy = "move_proxy"
	KeyUS10Y     = "us10y"
)

const (
	NameUSDJPY    = "USD/JPY Exchange Rate"
	NameUSDCNH    = "USD/CNH (Offshore Yuan) Value"
	NameMOVEProxy = "MOVE Index Volatility (Proxy)"
	NameUS10Y     = "10-Year Treasury Yield"
)

// MetricKeys is the fixed set of tracked metrics in snapshot order.
var MetricKeys = []string{KeyUSDJPY, KeyUSDCNH, KeyMOVEProxy, KeyUS10Y}

var metricNames = map[string]string{
	KeyUSDJPY:    NameUSDJPY,
	KeyUSDCNH:    NameUSDCNH,
	KeyMOVEProxy: NameMOVEProxy,
	KeyUS10Y:     NameUS10Y,
}

// MetricName returns the display name for key, or "" if key is not tracked.
func MetricName(key string) string { return metricNames[key] }

// MetricKey returns the key whose display name is name, or "".
func MetricKey(name string) string {
	for k, n := range metricNames {
		if n == name {
			return k
		}
	}
	return ""
}

// TargetDateLayout is the calendar-date format of Snapshot.TargetDate.
const TargetDateLayout = "2006-01-02"

// LastUpdateLayout is the display form of Snapshot.Timestamp.
const LastUpdateLayout = "2006-01-02 15:04:05 UTC"

// MetricObservation is one metric within a snapshot.
type MetricObservation struct {
	Key           string  `json:"key,omitempty"`
	Name          string  `json:"name"`
	Value         Reading `json:"value"`
	Signal        Signal  `json:"signal"`
	Volatility24h Reading `json:"volatility_24h"`
}

// RiskAssessment is the composite score derived from all observations.
type RiskAssessment struct {
	Score float64 `json:"score"`
	Level Level   `json:"level"`
	Color string  `json:"color"`
}

// Insights is the AI-generated commentary attached to a snapshot.
// Both fields hold HTML fragments or a placeholder message.
type Insights struct {
	StockPicks        string `json:"stock_picks"`
	TASIOpportunities string `json:"tasi_opportunities"`
}

// Snapshot is the immutable output of one polling cycle.
type Snapshot struct {
	ID             string              `json:"id,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
	LastUpdate     string              `json:"last_update,omitempty"` // display form of Timestamp
	TargetDate     string              `json:"target_date"`
	DaysRemaining  int                 `json:"days_remaining"`
	RiskAssessment RiskAssessment      `json:"risk_assessment"`
	Metrics        []MetricObservation `json:"metrics"`
	AIInsights     Insights            `json:"ai_insights"`
}

// Metric returns the observation with the given key.
func (s *Snapshot) Metric(key string) (MetricObservation, bool) {
	for _, m := range s.Metrics {
		if m.Key == key || (m.Key == "" && MetricKey(m.Name) == key) {
			return m, true
		}
	}
	return MetricObservation{}, false
}

// Time returns when the snapshot was taken. Snapshots written before the
// timestamp field existed only carry LastUpdate; the zero time is returned
// when neither is usable.
func (s *Snapshot) Time() time.Time {
	if !s.Timestamp.IsZero() {
		return s.Timestamp
	}
	t, err := time.Parse(LastUpdateLayout, s.LastUpdate)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Clone returns a deep copy so callers can hand snapshots across goroutines
// without sharing the metrics slice.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Metrics != nil {
		out.Metrics = make([]MetricObservation, len(s.Metrics))
		copy(out.Metrics, s.Metrics)
	}
	return out
}
