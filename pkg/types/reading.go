package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Reading is an observed metric value that is either present or missing.
// The zero value is missing.
type Reading struct {
	v     float64
	valid bool
}

// Value returns a present Reading. NaN and ±Inf are treated as missing.
func Value(v float64) Reading {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Reading{}
	}
	return Reading{v: v, valid: true}
}

// Missing returns an absent Reading.
func Missing() Reading { return Reading{} }

// Get returns the value and whether it is present.
func (r Reading) Get() (float64, bool) { return r.v, r.valid }

// Present reports whether the reading holds a value.
func (r Reading) Present() bool { return r.valid }

// Or returns the value, or def when missing.
func (r Reading) Or(def float64) float64 {
	if !r.valid {
		return def
	}
	return r.v
}

func (r Reading) String() string {
	if !r.valid {
		return "missing"
	}
	return strconv.FormatFloat(r.v, 'f', -1, 64)
}

// MarshalJSON encodes a present reading as a number and a missing one as null.
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.valid {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, r.v, 'f', -1, 64), nil
}

// UnmarshalJSON accepts a number, null, or a string. Strings that parse as a
// number (an optional trailing "%" is ignored) become present readings; any
// other string, such as "DATA ERROR" or "N/A", becomes missing.
func (r *Reading) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Missing()
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("reading: %w", err)
		}
		*r = parseLegacy(s)
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("reading: parse %q: %w", data, err)
	}
	*r = Value(v)
	return nil
}

func parseLegacy(s string) Reading {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return Missing()
	}
	return Value(v)
}
