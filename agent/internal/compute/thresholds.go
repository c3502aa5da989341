package compute

import "github.com/crashdetector/crashdetector/pkg/types"

// Ladder holds the thresholds for one metric. Values at or above Critical
// are CRITICAL_SHOCK, at or above High are HIGH_STRESS, and above Rising
// (or equal, when RisingInclusive) are RISING_STRESS.
type Ladder struct {
	Critical        float64 `yaml:"critical" json:"critical"`
	High            float64 `yaml:"high" json:"high"`
	Rising          float64 `yaml:"rising" json:"rising"`
	RisingInclusive bool    `yaml:"rising_inclusive" json:"rising_inclusive"`

	// VolatilityGate enables the volatility-aware steps when > 0. A recent
	// move of at least VolatilityGate turns a High reading into
	// HIGH_STRESS_HIGH_VOLATILITY.
	VolatilityGate float64 `yaml:"volatility_gate" json:"volatility_gate,omitempty"`
}

// Gated reports whether the ladder consults volatility.
func (l Ladder) Gated() bool { return l.VolatilityGate > 0 }

// Thresholds maps a metric key to its ladder.
type Thresholds map[string]Ladder

// DefaultThresholds returns the production ladders.
func DefaultThresholds() Thresholds {
	return Thresholds{
		types.KeyUSDJPY:    {Critical: 160.0, High: 155.0, Rising: 145.0, VolatilityGate: 2.0},
		types.KeyUSDCNH:    {Critical: 7.5, High: 7.3, Rising: 7.15},
		types.KeyMOVEProxy: {Critical: 80.0, High: 60.0, Rising: 40.0},
		types.KeyUS10Y:     {Critical: 5.5, High: 5.0, Rising: 4.5, RisingInclusive: true},
	}
}

// Clone returns an independent copy.
func (t Thresholds) Clone() Thresholds {
	out := make(Thresholds, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// VolatilityGated reports whether the metric's ladder uses volatility.
func (t Thresholds) VolatilityGated(key string) bool {
	l, ok := t[key]
	return ok && l.Gated()
}

// Palette maps each risk level to its display colour.
type Palette map[types.Level]string

// DefaultPalette returns the dashboard colours.
func DefaultPalette() Palette {
	return Palette{
		types.LevelUnknown:  "#6c757d",
		types.LevelLow:      "#28a745",
		types.LevelModerate: "#fd7e14",
		types.LevelElevated: "#ffc107",
		types.LevelCritical: "#dc3545",
	}
}

// Color returns the colour for level, falling back to the default palette.
func (p Palette) Color(level types.Level) string {
	if c, ok := p[level]; ok && c != "" {
		return c
	}
	return DefaultPalette()[level]
}
