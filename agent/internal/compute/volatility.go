package compute

import (
	"math"

	"github.com/crashdetector/crashdetector/pkg/types"
)

// Volatility returns |current - prior| where prior is the most recent present
// value recorded under name in history (scanned newest first). It returns
// missing when current is missing, history is empty, or no prior value exists.
func Volatility(current types.Reading, history types.History, name string) types.Reading {
	cur, ok := current.Get()
	if !ok {
		return types.Missing()
	}
	for i := len(history) - 1; i >= 0; i-- {
		for _, m := range history[i].Metrics {
			if m.Name != name {
				continue
			}
			if prior, ok := m.Value.Get(); ok {
				return types.Value(math.Abs(cur - prior))
			}
		}
	}
	return types.Missing()
}
