package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-resty/resty/v2"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/crashdetector/crashdetector/agent/internal/config"
	"github.com/crashdetector/crashdetector/pkg/types"
)

type promScraper struct {
	src    config.Source
	client *resty.Client
}

func (s *promScraper) Metric() string { return s.src.Metric }

// Scrape reads a text exposition endpoint and sums the series of the
// configured family whose labels match. An absent family is a failure.
func (s *promScraper) Scrape(ctx context.Context) *Result {
	res := newResult(s.src.Metric)

	mfs, err := fetchMetrics(ctx, s.client, s.src.Endpoint)
	if err != nil {
		slog.Warn("scraper: prometheus fetch failed", "metric", s.src.Metric, "endpoint", s.src.Endpoint, "err", err)
		return res.fail(fmt.Errorf("prometheus %q: %w", s.src.Metric, err))
	}

	v, ok := sumFamily(mfs[s.src.Family], s.src.Labels)
	if !ok {
		err := fmt.Errorf("%w: no series for %s%v", ErrNoData, s.src.Family, s.src.Labels)
		slog.Warn("scraper: prometheus series absent", "metric", s.src.Metric, "family", s.src.Family)
		return res.fail(fmt.Errorf("prometheus %q: %w", s.src.Metric, err))
	}
	res.Value = types.Value(v)
	return res
}

// fetchMetrics GETs url and returns the parsed metric families.
func fetchMetrics(ctx context.Context, c *resty.Client, url string) (map[string]*dto.MetricFamily, error) {
	resp, err := c.R().
		SetContext(ctx).
		SetHeader("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain))).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	return parseMetrics(bytes.NewReader(resp.Body()))
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial parse that produced at least one family counts as success.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds the counter, gauge or untyped values of every series in mf
// carrying all of the given labels. ok is false when no series matched.
func sumFamily(mf *dto.MetricFamily, labels map[string]string) (total float64, ok bool) {
	if mf == nil {
		return 0, false
	}
	for _, m := range mf.GetMetric() {
		if !hasLabels(m, labels) {
			continue
		}
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		default:
			continue
		}
		ok = true
	}
	return total, ok
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	if len(want) == 0 {
		return true
	}
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
