package scraper

import (
	"context"

	"github.com/crashdetector/crashdetector/agent/internal/config"
	"github.com/crashdetector/crashdetector/pkg/types"
)

// staticScraper reports a configured constant. It stands in for metrics
// without a live feed, such as the MOVE index proxy.
type staticScraper struct {
	src config.Source
}

func (s *staticScraper) Metric() string { return s.src.Metric }

func (s *staticScraper) Scrape(_ context.Context) *Result {
	res := newResult(s.src.Metric)
	res.Value = types.Value(s.src.Value)
	return res
}
