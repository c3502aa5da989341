package types

import "strings"

// Signal is the stress category assigned to one metric observation.
type Signal string

const (
	SignalNormal                   Signal = "NORMAL"
	SignalRisingStress             Signal = "RISING_STRESS"
	SignalHighStress               Signal = "HIGH_STRESS"
	SignalHighStressHighVolatility Signal = "HIGH_STRESS_HIGH_VOLATILITY"
	SignalCriticalShock            Signal = "CRITICAL_SHOCK"
	SignalDataError                Signal = "DATA_ERROR"
)

// Signals lists every signal from least to most severe, DATA_ERROR last.
var Signals = []Signal{
	SignalNormal,
	SignalRisingStress,
	SignalHighStress,
	SignalHighStressHighVolatility,
	SignalCriticalShock,
	SignalDataError,
}

// legacySignals maps the display labels written by earlier tracker versions.
var legacySignals = map[string]Signal{
	"NORMAL":                        SignalNormal,
	"RISING STRESS":                 SignalRisingStress,
	"HIGH STRESS":                   SignalHighStress,
	"HIGH STRESS + HIGH VOLATILITY": SignalHighStressHighVolatility,
	"CRITICAL SHOCK":                SignalCriticalShock,
	"DATA ERROR":                    SignalDataError,
}

// Valid reports whether s is one of the known signals.
func (s Signal) Valid() bool {
	for _, k := range Signals {
		if s == k {
			return true
		}
	}
	return false
}

// ParseSignal converts either the canonical or the legacy label to a Signal.
// Unknown labels return ("", false).
func ParseSignal(label string) (Signal, bool) {
	label = strings.TrimSpace(label)
	if s := Signal(label); s.Valid() {
		return s, true
	}
	s, ok := legacySignals[strings.ToUpper(label)]
	return s, ok
}

// UnmarshalText accepts canonical and legacy labels. Unrecognised labels are
// kept verbatim so they round-trip; Valid reports them as unknown.
func (s *Signal) UnmarshalText(text []byte) error {
	if parsed, ok := ParseSignal(string(text)); ok {
		*s = parsed
		return nil
	}
	*s = Signal(text)
	return nil
}

// Level is the composite risk tier.
type Level string

const (
	LevelUnknown  Level = "UNKNOWN"
	LevelLow      Level = "LOW"
	LevelModerate Level = "MODERATE"
	LevelElevated Level = "ELEVATED"
	LevelCritical Level = "CRITICAL"
)
