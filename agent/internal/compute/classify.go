package compute

import "github.com/crashdetector/crashdetector/pkg/types"

// Classifier assigns stress signals using a fixed set of thresholds.
// It is immutable and safe for concurrent use.
type Classifier struct {
	th Thresholds
}

// NewClassifier returns a Classifier using a private copy of th.
func NewClassifier(th Thresholds) *Classifier {
	return &Classifier{th: th.Clone()}
}

// Thresholds returns a copy of the classifier's ladders.
func (c *Classifier) Thresholds() Thresholds { return c.th.Clone() }

// Classify returns the signal for one observation. A missing value is
// DATA_ERROR; a metric without a ladder is NORMAL.
func (c *Classifier) Classify(key string, value, volatility types.Reading) types.Signal {
	v, ok := value.Get()
	if !ok {
		return types.SignalDataError
	}
	l, ok := c.th[key]
	if !ok {
		return types.SignalNormal
	}
	return l.classify(v, volatility)
}

func (l Ladder) classify(v float64, volatility types.Reading) types.Signal {
	if l.Gated() {
		if move, ok := volatility.Get(); ok && move >= l.VolatilityGate {
			switch {
			case v >= l.Critical:
				return types.SignalCriticalShock
			case v >= l.High:
				return types.SignalHighStressHighVolatility
			}
		}
	}

	switch {
	case v >= l.Critical:
		return types.SignalCriticalShock
	case v >= l.High:
		return types.SignalHighStress
	case v > l.Rising, l.RisingInclusive && v == l.Rising:
		return types.SignalRisingStress
	default:
		return types.SignalNormal
	}
}
