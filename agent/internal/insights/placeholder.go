package insights

import (
	"errors"
	"strings"

	"github.com/crashdetector/crashdetector/pkg/types"
)

// Placeholder texts shown in place of insights.
const (
	PlaceholderMissingKey   = "AI Analysis Unavailable (Missing API Key)"
	PlaceholderDisabled     = "AI Analysis Disabled"
	PlaceholderUnauthorized = "AI Configuration Error: Invalid API Key (401)"
	PlaceholderRateLimited  = "AI Busy: Rate Limit Exceeded (429)"
	PlaceholderParse        = "AI Error: Response Parsing Failed"
)

const genericPrefixLen = 30

// errPrefix is stripped from generic errors so the excerpt shows the cause.
const errPrefix = "insights: "

// Placeholder returns the user-facing text for a generation failure.
func Placeholder(err error) string {
	switch {
	case errors.Is(err, ErrMissingKey):
		return PlaceholderMissingKey
	case errors.Is(err, ErrDisabled):
		return PlaceholderDisabled
	case errors.Is(err, ErrUnauthorized):
		return PlaceholderUnauthorized
	case errors.Is(err, ErrRateLimited):
		return PlaceholderRateLimited
	case errors.Is(err, ErrParse):
		return PlaceholderParse
	}
	msg := []rune(strings.TrimPrefix(err.Error(), errPrefix))
	if len(msg) > genericPrefixLen {
		msg = msg[:genericPrefixLen]
	}
	return "AI Analysis Failed: " + string(msg) + "..."
}

// Resolve returns ins unchanged when err is nil; otherwise both fields carry
// Placeholder(err).
func Resolve(ins types.Insights, err error) types.Insights {
	if err == nil {
		return ins
	}
	p := Placeholder(err)
	return types.Insights{StockPicks: p, TASIOpportunities: p}
}
