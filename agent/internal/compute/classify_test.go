package compute

import (
	"testing"

	"github.com/crashdetector/crashdetector/pkg/types"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(DefaultThresholds())
	missing := types.Missing()
	vol := types.Value

	tests := []struct {
		name string
		key  string
		v    types.Reading
		vol  types.Reading
		want types.Signal
	}{
		{"missing value", types.KeyUSDJPY, missing, missing, types.SignalDataError},
		{"missing value unknown key", "gold", missing, missing, types.SignalDataError},
		{"unknown key", "gold", types.Value(9999), missing, types.SignalNormal},

		{"jpy just below high", types.KeyUSDJPY, types.Value(154.99), missing, types.SignalRisingStress},
		{"jpy 159.9 calm", types.KeyUSDJPY, types.Value(159.9), vol(0.5), types.SignalHighStress},
		{"jpy 159.9 volatile", types.KeyUSDJPY, types.Value(159.9), vol(2.0), types.SignalHighStressHighVolatility},
		{"jpy 160 calm", types.KeyUSDJPY, types.Value(160), vol(0.1), types.SignalCriticalShock},
		{"jpy 160 volatile", types.KeyUSDJPY, types.Value(160), vol(3), types.SignalCriticalShock},
		{"jpy 160 no volatility", types.KeyUSDJPY, types.Value(160), missing, types.SignalCriticalShock},
		{"jpy volatile below high", types.KeyUSDJPY, types.Value(150), vol(5), types.SignalRisingStress},
		{"jpy rising exclusive", types.KeyUSDJPY, types.Value(145), missing, types.SignalNormal},
		{"jpy rising", types.KeyUSDJPY, types.Value(145.01), missing, types.SignalRisingStress},

		{"cnh critical", types.KeyUSDCNH, types.Value(7.5), missing, types.SignalCriticalShock},
		{"cnh high", types.KeyUSDCNH, types.Value(7.3), missing, types.SignalHighStress},
		{"cnh rising", types.KeyUSDCNH, types.Value(7.2), missing, types.SignalRisingStress},
		{"cnh rising exclusive", types.KeyUSDCNH, types.Value(7.15), missing, types.SignalNormal},
		{"cnh ignores volatility", types.KeyUSDCNH, types.Value(7.3), vol(10), types.SignalHighStress},

		{"move proxy default", types.KeyMOVEProxy, types.Value(45), missing, types.SignalRisingStress},
		{"move 40 exclusive", types.KeyMOVEProxy, types.Value(40), missing, types.SignalNormal},
		{"move high", types.KeyMOVEProxy, types.Value(60), missing, types.SignalHighStress},
		{"move critical", types.KeyMOVEProxy, types.Value(80), missing, types.SignalCriticalShock},

		{"us10y rising inclusive", types.KeyUS10Y, types.Value(4.5), missing, types.SignalRisingStress},
		{"us10y below rising", types.KeyUS10Y, types.Value(4.49), missing, types.SignalNormal},
		{"us10y high", types.KeyUS10Y, types.Value(5.0), missing, types.SignalHighStress},
		{"us10y critical", types.KeyUS10Y, types.Value(5.5), missing, types.SignalCriticalShock},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Classify(tc.key, tc.v, tc.vol); got != tc.want {
				t.Errorf("Classify(%s, %v, %v) = %s, want %s", tc.key, tc.v, tc.vol, got, tc.want)
			}
		})
	}
}

func TestClassifier_ThresholdsAreCopied(t *testing.T) {
	th := DefaultThresholds()
	c := NewClassifier(th)

	l := th[types.KeyUSDCNH]
	l.Critical = 1
	th[types.KeyUSDCNH] = l

	if got := c.Classify(types.KeyUSDCNH, types.Value(7.0), types.Missing()); got != types.SignalNormal {
		t.Errorf("classifier saw caller mutation: got %s", got)
	}
	out := c.Thresholds()
	delete(out, types.KeyUSDCNH)
	if got := c.Classify(types.KeyUSDCNH, types.Value(7.6), types.Missing()); got != types.SignalCriticalShock {
		t.Errorf("classifier saw mutation of returned thresholds: got %s", got)
	}
}

func TestThresholds_VolatilityGated(t *testing.T) {
	th := DefaultThresholds()
	if !th.VolatilityGated(types.KeyUSDJPY) {
		t.Error("usd_jpy should be volatility gated")
	}
	for _, k := range []string{types.KeyUSDCNH, types.KeyMOVEProxy, types.KeyUS10Y, "unknown"} {
		if th.VolatilityGated(k) {
			t.Errorf("%s should not be volatility gated", k)
		}
	}
}
