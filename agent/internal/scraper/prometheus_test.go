package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/crashdetector/crashdetector/agent/internal/config"
	"github.com/crashdetector/crashdetector/pkg/types"
)

// exporterMetrics is a bond-volatility exporter's /metrics output.
const exporterMetrics = `
# HELP move_index ICE BofA MOVE index level.
# TYPE move_index gauge
move_index{tenor="1m",source="ice"} 97.5
move_index{tenor="3m",source="ice"} 88.25

# HELP exporter_scrapes_total Scrapes of the upstream feed.
# TYPE exporter_scrapes_total counter
exporter_scrapes_total 12
`

func promServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func promSource(endpoint, family string, labels map[string]string) config.Source {
	return config.Source{Metric: types.KeyMOVEProxy, Type: config.SourcePrometheus, Endpoint: endpoint, Family: family, Labels: labels}
}

func TestPromScraper_LabelFilter(t *testing.T) {
	srv := promServer(t, exporterMetrics)
	s, _ := New(promSource(srv.URL, "move_index", map[string]string{"tenor": "1m"}), testOpts)

	res := s.Scrape(context.Background())
	if res.Err != nil {
		t.Fatalf("res.Err = %v", res.Err)
	}
	if res.Value != types.Value(97.5) {
		t.Errorf("Value = %v, want 97.5", res.Value)
	}
}

func TestPromScraper_SumsAllSeries(t *testing.T) {
	srv := promServer(t, exporterMetrics)
	s, _ := New(promSource(srv.URL, "move_index", nil), testOpts)

	res := s.Scrape(context.Background())
	if res.Value != types.Value(185.75) {
		t.Errorf("Value = %v, want 185.75", res.Value)
	}
}

func TestPromScraper_AbsentFamily(t *testing.T) {
	srv := promServer(t, exporterMetrics)
	s, _ := New(promSource(srv.URL, "vix_index", nil), testOpts)

	res := s.Scrape(context.Background())
	if !errors.Is(res.Err, ErrNoData) {
		t.Errorf("Err = %v, want ErrNoData", res.Err)
	}
	if res.Value.Present() {
		t.Errorf("Value = %v, want missing", res.Value)
	}
}

func TestPromScraper_NoMatchingLabels(t *testing.T) {
	srv := promServer(t, exporterMetrics)
	s, _ := New(promSource(srv.URL, "move_index", map[string]string{"tenor": "1y"}), testOpts)

	if res := s.Scrape(context.Background()); !errors.Is(res.Err, ErrNoData) {
		t.Errorf("Err = %v, want ErrNoData", res.Err)
	}
}

func TestPromScraper_ConnectFailure(t *testing.T) {
	opts := testOpts
	opts.Attempts = 1
	s, _ := New(promSource("http://127.0.0.1:1", "move_index", nil), opts)
	res := s.Scrape(context.Background())
	if res.Err == nil {
		t.Fatal("res.Err should be set when endpoint is unreachable")
	}
}

func TestParseMetrics_Garbage(t *testing.T) {
	if _, err := parseMetrics(strings.NewReader("{{{ not prometheus")); err == nil {
		t.Error("expected parse error")
	}
}

func TestSumFamily_Nil(t *testing.T) {
	if _, ok := sumFamily(nil, nil); ok {
		t.Error("sumFamily(nil) should report no match")
	}
}
