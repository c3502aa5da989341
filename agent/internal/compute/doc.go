// Package compute turns raw metric readings into stress signals and a
// composite risk assessment.
//
// volatility.go finds the most recent valid prior value of a metric in the
// history window and returns the absolute move. The lookup is stale-tolerant:
// a missed day silently compares against the last successful observation.
//
// classify.go maps (metric, value, volatility) to a Signal using per-metric
// threshold ladders held in an immutable Thresholds value. Ladders are
// evaluated most severe first; a ladder with a volatility gate upgrades
// high readings when the recent move is large.
//
// score.go averages the per-signal weights over all non-DATA_ERROR
// observations and maps the mean to a risk Level:
// Critical ≥70, Elevated ≥45, Moderate ≥20, Low otherwise, Unknown when every
// metric failed. Display colours come from a Palette table.
package compute
