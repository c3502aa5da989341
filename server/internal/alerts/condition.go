package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/crashdetector/crashdetector/pkg/types"
)

// Condition fields that are not metric keys.
const (
	fieldRiskScore     = "risk_score"
	fieldLevel         = "level"
	fieldDaysRemaining = "days_remaining"
)

// Metric attributes addressed as "<key>.<attr>".
const (
	attrSignal     = "signal"
	attrVolatility = "volatility"
)

// condition is a parsed rule expression of the form "field operator value".
//
// Supported expressions:
//
//	risk_score >= 70
//	level == CRITICAL
//	days_remaining < 7
//	usd_jpy > 158
//	usd_jpy.signal == CRITICAL_SHOCK
//	usd_jpy.volatility >= 2
//
// level and signal comparisons accept only == and !=.
type condition struct {
	field string
	attr  string
	op    string
	num   float64
	text  string
}

// parseCondition validates cond and returns its parsed form.
func parseCondition(cond string) (condition, error) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("want \"field operator value\", got %q", cond)
	}
	c := condition{op: parts[1]}
	switch c.op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return condition{}, fmt.Errorf("unknown operator %q", c.op)
	}

	c.field, c.attr, _ = strings.Cut(parts[0], ".")
	rhs := parts[2]

	switch c.field {
	case fieldRiskScore, fieldDaysRemaining:
		if c.attr != "" {
			return condition{}, fmt.Errorf("field %q has no attributes", c.field)
		}
	case fieldLevel:
		if c.attr != "" {
			return condition{}, fmt.Errorf("field %q has no attributes", c.field)
		}
		if !validLevel(types.Level(rhs)) {
			return condition{}, fmt.Errorf("unknown level %q", rhs)
		}
	default:
		if types.MetricName(c.field) == "" {
			return condition{}, fmt.Errorf("unknown field %q", c.field)
		}
		switch c.attr {
		case "", attrVolatility:
		case attrSignal:
			if !types.Signal(rhs).Valid() {
				return condition{}, fmt.Errorf("unknown signal %q", rhs)
			}
		default:
			return condition{}, fmt.Errorf("unknown metric attribute %q", c.attr)
		}
	}

	if c.textual() {
		if c.op != "==" && c.op != "!=" {
			return condition{}, fmt.Errorf("operator %q not allowed on %s", c.op, parts[0])
		}
		c.text = rhs
		return c, nil
	}
	v, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return condition{}, fmt.Errorf("value %q is not a number", rhs)
	}
	c.num = v
	return c, nil
}

func (c condition) textual() bool {
	return c.field == fieldLevel || c.attr == attrSignal
}

// eval tests c against snap and returns whether it fires and the numeric
// value that triggered it (0 for textual comparisons). A missing metric or
// missing reading never fires.
func (c condition) eval(snap *types.Snapshot) (bool, float64) {
	switch c.field {
	case fieldRiskScore:
		v := snap.RiskAssessment.Score
		return compareFloat(v, c.op, c.num), v
	case fieldDaysRemaining:
		v := float64(snap.DaysRemaining)
		return compareFloat(v, c.op, c.num), v
	case fieldLevel:
		return compareText(string(snap.RiskAssessment.Level), c.op, c.text), 0
	}

	m, ok := snap.Metric(c.field)
	if !ok {
		return false, 0
	}
	var r types.Reading
	switch c.attr {
	case attrSignal:
		return compareText(string(m.Signal), c.op, c.text), 0
	case attrVolatility:
		r = m.Volatility24h
	default:
		r = m.Value
	}
	v, ok := r.Get()
	if !ok {
		return false, 0
	}
	return compareFloat(v, c.op, c.num), v
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}

func compareText(v, op, want string) bool {
	switch op {
	case "==":
		return v == want
	case "!=":
		return v != want
	default:
		return false
	}
}

func validLevel(l types.Level) bool {
	switch l {
	case types.LevelUnknown, types.LevelLow, types.LevelModerate, types.LevelElevated, types.LevelCritical:
		return true
	}
	return false
}
