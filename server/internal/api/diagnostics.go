package api

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/crashdetector/crashdetector/pkg/types"
)

// DiagnosticHint is one human-readable insight about the latest snapshot.
// The UI displays these as chips; clicking one shows Detail, written in
// plain English for someone who does not read the raw numbers daily.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Metric is the metric key the hint is about, if any.
	Metric string `json:"metric,omitempty"`
	// Title is a short label shown on the chip.
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

var shortNames = map[string]string{
	types.KeyUSDJPY:    "USD/JPY",
	types.KeyUSDCNH:    "USD/CNH",
	types.KeyMOVEProxy: "MOVE",
	types.KeyUS10Y:     "10Y yield",
}

// marketContext explains why stress in each metric matters.
var marketContext = map[string]string{
	types.KeyUSDJPY: "A yen this weak has historically drawn Bank of Japan intervention, " +
		"and a sharp reversal can force a fast unwind of yen-funded carry trades.",
	types.KeyUSDCNH: "A sliding offshore yuan points to capital outflow pressure and a " +
		"central bank willing to tolerate depreciation, which tends to spill into other Asian currencies.",
	types.KeyMOVEProxy: "MOVE tracks implied volatility in US Treasuries. When it climbs, " +
		"funding conditions tighten across every market that uses Treasuries as collateral.",
	types.KeyUS10Y: "Yields at this level raise the discount rate on equities and put " +
		"leveraged holders of long-duration bonds under pressure.",
}

// insightPlaceholderPrefixes identify insights that were replaced by an
// error placeholder instead of model output.
var insightPlaceholderPrefixes = []string{
	"AI Configuration Error",
	"AI Busy",
	"AI Error",
	"AI Analysis",
}

// computeDiagnostics derives hints from snap. snap is nil when nothing has
// been loaded yet. Hints are ordered critical first, then warning, info, ok.
func computeDiagnostics(snap *types.Snapshot, stale bool, age, ttl time.Duration) []DiagnosticHint {
	if snap == nil {
		return []DiagnosticHint{{
			Key:   "warming_up",
			Level: "info",
			Title: "Waiting for data",
			Detail: "No snapshot has been written yet. The agent writes one at the end of each cycle; " +
				"run it once (it needs FINANCIAL_API_KEY) or wait for the next scheduled run. " +
				"This page updates by itself as soon as the file appears.",
		}}
	}

	var hints []DiagnosticHint

	if stale {
		hours := age.Hours()
		hints = append(hints, DiagnosticHint{
			Key:   "stale",
			Level: "critical",
			Title: "Data is stale",
			Detail: fmt.Sprintf(
				"The latest snapshot is %s old, past the %s freshness window. "+
					"The agent has probably stopped running. Check its schedule (cron or -loop mode), "+
					"its logs, and that it can still write to storage.",
				age.Truncate(time.Minute), ttl,
			),
			Value: &hours,
		})
	}

	valid := 0
	for _, m := range snap.Metrics {
		if m.Signal != types.SignalDataError {
			valid++
		}
	}
	if valid == 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "no_data",
			Level: "critical",
			Title: "No metrics fetched",
			Detail: "Every metric fetch failed in the last cycle, so the risk level is UNKNOWN. " +
				"The usual cause is a missing, invalid or rate-limited data provider key. " +
				"Free Alpha Vantage keys allow only a few requests per minute and a small daily quota.",
		})
		return sortHints(hints)
	}

	for _, m := range snap.Metrics {
		if h, ok := metricHint(m); ok {
			hints = append(hints, h)
		}
	}

	if h, ok := insightsHint(snap.AIInsights); ok {
		hints = append(hints, h)
	}

	if len(hints) == 0 {
		score := snap.RiskAssessment.Score
		hints = append(hints, DiagnosticHint{
			Key:   "healthy",
			Level: "ok",
			Title: "All clear",
			Detail: fmt.Sprintf(
				"All %d metrics were fetched and none shows stress. The composite risk score is %.1f (%s). "+
					"Keep an eye on USD/JPY volatility: a fast move there is the earliest shock signal this tracker has.",
				valid, score, snap.RiskAssessment.Level,
			),
			Value: &score,
		})
	}

	return sortHints(hints)
}

// metricHint returns the hint for one observation, if its signal warrants one.
func metricHint(m types.MetricObservation) (DiagnosticHint, bool) {
	key := m.Key
	if key == "" {
		key = types.MetricKey(m.Name)
	}
	short := shortNames[key]
	if short == "" {
		short = m.Name
	}
	h := DiagnosticHint{Key: "signal:" + key, Metric: key}
	if v, ok := m.Value.Get(); ok {
		h.Value = &v
	}

	switch m.Signal {
	case types.SignalDataError:
		h.Key = "fetch_failed:" + key
		h.Level = "warning"
		h.Title = short + " unavailable"
		h.Detail = fmt.Sprintf(
			"The agent could not fetch %s in the last cycle, so it was left out of the risk score. "+
				"A rate-limit reply from the provider is the most common cause and usually clears by the next run.",
			m.Name,
		)
		return h, true

	case types.SignalCriticalShock:
		h.Level = "critical"
		h.Title = short + " shock"
		h.Detail = fmt.Sprintf(
			"%s is at %s and moved %s since the previous reading. That combination of level and speed "+
				"is what a disorderly move looks like. %s",
			m.Name, m.Value, m.Volatility24h, marketContext[key],
		)

	case types.SignalHighStressHighVolatility:
		h.Level = "critical"
		h.Title = short + " stressed and volatile"
		h.Detail = fmt.Sprintf(
			"%s is at %s and moved %s since the previous reading. The level is already stressed "+
				"and the move is large. %s",
			m.Name, m.Value, m.Volatility24h, marketContext[key],
		)

	case types.SignalHighStress:
		h.Level = "warning"
		h.Title = short + " high stress"
		h.Detail = fmt.Sprintf("%s is at %s, inside its high-stress band. %s", m.Name, m.Value, marketContext[key])

	case types.SignalRisingStress:
		h.Level = "info"
		h.Title = short + " rising"
		h.Detail = fmt.Sprintf(
			"%s is at %s, above its normal range but not yet stressed. Worth watching for a trend over the next few runs.",
			m.Name, m.Value,
		)

	default:
		return DiagnosticHint{}, false
	}
	return h, true
}

// insightsHint flags AI commentary that was replaced by a placeholder.
func insightsHint(in types.Insights) (DiagnosticHint, bool) {
	for _, p := range insightPlaceholderPrefixes {
		if strings.HasPrefix(in.StockPicks, p) {
			return DiagnosticHint{
				Key:   "insights_unavailable",
				Level: "info",
				Title: "AI commentary missing",
				Detail: fmt.Sprintf(
					"The AI commentary for this snapshot could not be generated: %q. "+
						"The risk score does not depend on it.",
					in.StockPicks,
				),
			}, true
		}
	}
	return DiagnosticHint{}, false
}

func sortHints(h []DiagnosticHint) []DiagnosticHint {
	sort.SliceStable(h, func(i, j int) bool { return levelRank[h[i].Level] < levelRank[h[j].Level] })
	return h
}
