package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crashdetector/crashdetector/agent/internal/config"
	"github.com/crashdetector/crashdetector/pkg/types"
)

var testOpts = Options{APIKey: "test-key", Timeout: 2 * time.Second, Attempts: 3, RetryWait: time.Millisecond}

const fxBody = `{
    "Realtime Currency Exchange Rate": {
        "1. From_Currency Code": "USD",
        "3. To_Currency Code": "JPY",
        "5. Exchange Rate": "151.23400000",
        "6. Last Refreshed": "2026-10-16 07:59:01"
    }
}`

// avServer serves bodies[i] for the i-th request (the last body repeats) and
// counts requests.
func avServer(t *testing.T, status []int, bodies ...string) (*httptest.Server, *int32) {
	t.Helper()
	var n int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := int(atomic.AddInt32(&n, 1)) - 1
		if r.URL.Query().Get("apikey") != "test-key" {
			t.Errorf("apikey = %q", r.URL.Query().Get("apikey"))
		}
		code := http.StatusOK
		if i < len(status) {
			code = status[i]
		}
		w.WriteHeader(code)
		b := bodies[len(bodies)-1]
		if i < len(bodies) {
			b = bodies[i]
		}
		_, _ = w.Write([]byte(b))
	}))
	t.Cleanup(srv.Close)
	return srv, &n
}

func fxSource(endpoint string) config.Source {
	return config.Source{Metric: types.KeyUSDJPY, Type: config.SourceAlphaVantageFX, Endpoint: endpoint, FromCurrency: "USD", ToCurrency: "JPY"}
}

func TestFXScraper_Success(t *testing.T) {
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query = map[string]string{"function": q.Get("function"), "from": q.Get("from_currency"), "to": q.Get("to_currency")}
		_, _ = w.Write([]byte(fxBody))
	}))
	defer srv.Close()

	s, err := New(fxSource(srv.URL), testOpts)
	if err != nil {
		t.Fatal(err)
	}
	res := s.Scrape(context.Background())
	if res.Err != nil {
		t.Fatalf("res.Err = %v", res.Err)
	}
	if res.Metric != types.KeyUSDJPY {
		t.Errorf("Metric = %q", res.Metric)
	}
	if res.Value != types.Value(151.234) {
		t.Errorf("Value = %v, want 151.234", res.Value)
	}
	if query["function"] != "CURRENCY_EXCHANGE_RATE" || query["from"] != "USD" || query["to"] != "JPY" {
		t.Errorf("query = %v", query)
	}
}

func TestFXScraper_ProviderNotices(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"rate limit note", `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`, ErrRateLimited},
		{"information", `{"Information": "API rate limit reached."}`, ErrRateLimited},
		{"error message", `{"Error Message": "Invalid API call."}`, ErrProvider},
		{"missing block", `{}`, ErrNoData},
		{"unparseable rate", `{"Realtime Currency Exchange Rate": {"5. Exchange Rate": "n/a"}}`, ErrNoData},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, n := avServer(t, nil, tc.body)
			s, _ := New(fxSource(srv.URL), testOpts)

			res := s.Scrape(context.Background())
			if !errors.Is(res.Err, tc.want) {
				t.Errorf("Err = %v, want %v", res.Err, tc.want)
			}
			if res.Value.Present() {
				t.Errorf("Value = %v, want missing", res.Value)
			}
			if got := atomic.LoadInt32(n); got != 1 {
				t.Errorf("requests = %d, want 1 (notices are not retried)", got)
			}
		})
	}
}

func TestFXScraper_RetriesServerErrors(t *testing.T) {
	srv, n := avServer(t, []int{503, 502, 200}, "oops", "oops", fxBody)
	s, _ := New(fxSource(srv.URL), testOpts)

	res := s.Scrape(context.Background())
	if res.Err != nil {
		t.Fatalf("res.Err = %v", res.Err)
	}
	if res.Value != types.Value(151.234) {
		t.Errorf("Value = %v", res.Value)
	}
	if got := atomic.LoadInt32(n); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestFXScraper_GivesUpAfterAttempts(t *testing.T) {
	srv, n := avServer(t, []int{500, 500, 500, 500, 500}, "down")
	s, _ := New(fxSource(srv.URL), testOpts)

	res := s.Scrape(context.Background())
	if res.Err == nil || res.Value.Present() {
		t.Fatalf("want failure, got %v / %v", res.Value, res.Err)
	}
	if got := atomic.LoadInt32(n); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestFXScraper_ClientErrorNotRetried(t *testing.T) {
	srv, n := avServer(t, []int{403}, "forbidden")
	s, _ := New(fxSource(srv.URL), testOpts)

	res := s.Scrape(context.Background())
	if res.Err == nil {
		t.Fatal("want failure on 403")
	}
	if got := atomic.LoadInt32(n); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestFXScraper_ConnectFailure(t *testing.T) {
	opts := testOpts
	opts.Attempts = 1
	s, _ := New(fxSource("http://127.0.0.1:1"), opts)
	res := s.Scrape(context.Background())
	if res.Err == nil {
		t.Fatal("res.Err should be set when endpoint is unreachable")
	}
	if res.Value.Present() {
		t.Errorf("Value = %v, want missing", res.Value)
	}
}

func TestYieldScraper(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    types.Reading
		wantErr error
	}{
		{
			name: "newest value",
			body: `{"name": "Daily Treasury Yield", "data": [{"date": "2026-10-15", "value": "4.25"}, {"date": "2026-10-14", "value": "4.20"}]}`,
			want: types.Value(4.25),
		},
		{
			name: "skips holiday markers",
			body: `{"data": [{"date": "2026-10-13", "value": "."}, {"date": "2026-10-10", "value": "4.18"}]}`,
			want: types.Value(4.18),
		},
		{
			name:    "empty series",
			body:    `{"data": []}`,
			want:    types.Missing(),
			wantErr: ErrNoData,
		},
		{
			name:    "rate limited",
			body:    `{"Note": "slow down"}`,
			want:    types.Missing(),
			wantErr: ErrRateLimited,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var maturity string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				maturity = r.URL.Query().Get("maturity")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			s, _ := New(config.Source{Metric: types.KeyUS10Y, Type: config.SourceAlphaVantageYield, Endpoint: srv.URL, Maturity: "10year"}, testOpts)
			res := s.Scrape(context.Background())
			if res.Value != tc.want {
				t.Errorf("Value = %v, want %v", res.Value, tc.want)
			}
			if tc.wantErr != nil && !errors.Is(res.Err, tc.wantErr) {
				t.Errorf("Err = %v, want %v", res.Err, tc.wantErr)
			}
			if tc.wantErr == nil && res.Err != nil {
				t.Errorf("Err = %v", res.Err)
			}
			if maturity != "10year" {
				t.Errorf("maturity = %q", maturity)
			}
		})
	}
}

func TestStaticScraper(t *testing.T) {
	s, err := New(config.Source{Metric: types.KeyMOVEProxy, Type: config.SourceStatic, Value: 45}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	res := s.Scrape(context.Background())
	if res.Err != nil || res.Value != types.Value(45) {
		t.Errorf("static = %v / %v", res.Value, res.Err)
	}
	if s.Metric() != types.KeyMOVEProxy {
		t.Errorf("Metric() = %q", s.Metric())
	}
}

func TestNew_UnsupportedType(t *testing.T) {
	if _, err := New(config.Source{Metric: "x", Type: "bloomberg"}, Options{}); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestNewAll(t *testing.T) {
	ss, err := NewAll(config.DefaultSources(), testOpts)
	if err != nil {
		t.Fatal(err)
	}
	if len(ss) != 4 {
		t.Fatalf("len = %d, want 4", len(ss))
	}
	for i, src := range config.DefaultSources() {
		if ss[i].Metric() != src.Metric {
			t.Errorf("scraper[%d].Metric() = %q, want %q", i, ss[i].Metric(), src.Metric)
		}
	}
}
