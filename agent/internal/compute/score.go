package compute

import (
	"github.com/shopspring/decimal"

	"github.com/crashdetector/crashdetector/pkg/types"
)

// Thresholds that map the mean signal weight to a risk level.
const (
	ThresholdCritical = 70.0
	ThresholdElevated = 45.0
	ThresholdModerate = 20.0
)

// weights is the severity weight of each signal. DATA_ERROR carries no
// weight and is also excluded from the divisor.
var weights = map[types.Signal]float64{
	types.SignalCriticalShock:            100,
	types.SignalHighStressHighVolatility: 80,
	types.SignalHighStress:               60,
	types.SignalRisingStress:             30,
	types.SignalNormal:                   0,
	types.SignalDataError:                0,
}

// Weight returns the severity weight of s. Unknown signals weigh 0.
func Weight(s types.Signal) float64 { return weights[s] }

// Score computes the composite risk assessment for a set of observations.
//
//	score = sum(weight(signal)) / count(signal != DATA_ERROR)
//
// When every observation is DATA_ERROR (or there are none) the result is
// {0, UNKNOWN}. The reported score is rounded to one decimal place; the level
// is derived from the unrounded mean.
func Score(metrics []types.MetricObservation, palette Palette) types.RiskAssessment {
	var sum float64
	var n int
	for _, m := range metrics {
		sum += Weight(m.Signal)
		if m.Signal != types.SignalDataError {
			n++
		}
	}

	if n == 0 {
		return types.RiskAssessment{Score: 0, Level: types.LevelUnknown, Color: palette.Color(types.LevelUnknown)}
	}

	mean := sum / float64(n)
	level := levelFromScore(mean)
	return types.RiskAssessment{
		Score: decimal.NewFromFloat(mean).Round(1).InexactFloat64(),
		Level: level,
		Color: palette.Color(level),
	}
}

// levelFromScore maps a mean weight to a risk level.
func levelFromScore(score float64) types.Level {
	switch {
	case score >= ThresholdCritical:
		return types.LevelCritical
	case score >= ThresholdElevated:
		return types.LevelElevated
	case score >= ThresholdModerate:
		return types.LevelModerate
	default:
		return types.LevelLow
	}
}
