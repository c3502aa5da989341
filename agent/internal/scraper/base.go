package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/crashdetector/crashdetector/agent/internal/config"
	"github.com/crashdetector/crashdetector/pkg/types"
)

// Errors reported in Result.Err.
var (
	// ErrRateLimited means the provider answered with a throttling notice.
	ErrRateLimited = errors.New("provider rate limit")
	// ErrProvider means the provider answered with an error message.
	ErrProvider = errors.New("provider error")
	// ErrNoData means the response held no usable value.
	ErrNoData = errors.New("no data")
)

// Result is the outcome of one fetch.
type Result struct {
	Metric    string
	Value     types.Reading
	ScrapedAt time.Time

	// Err is non-nil if the fetch failed. Value is then missing.
	Err error
}

// Scraper fetches the current value of one metric.
type Scraper interface {
	// Metric returns the metric key this scraper feeds.
	Metric() string
	Scrape(ctx context.Context) *Result
}

// Options carries settings shared by all scrapers.
type Options struct {
	// APIKey is the data-provider key for Alpha Vantage sources.
	APIKey    string
	Timeout   time.Duration
	Attempts  int
	RetryWait time.Duration
}

// New returns the Scraper for src. The HTTP client is built once and reused.
func New(src config.Source, opts Options) (Scraper, error) {
	switch src.Type {
	case config.SourceAlphaVantageFX:
		return &fxScraper{src: src, apiKey: opts.APIKey, client: newClient(opts)}, nil
	case config.SourceAlphaVantageYield:
		return &yieldScraper{src: src, apiKey: opts.APIKey, client: newClient(opts)}, nil
	case config.SourcePrometheus:
		return &promScraper{src: src, client: newClient(opts)}, nil
	case config.SourceStatic:
		return &staticScraper{src: src}, nil
	default:
		return nil, fmt.Errorf("scraper %q: unsupported type %q", src.Metric, src.Type)
	}
}

// NewAll builds a scraper for every source.
func NewAll(srcs []config.Source, opts Options) ([]Scraper, error) {
	out := make([]Scraper, 0, len(srcs))
	for _, src := range srcs {
		s, err := New(src, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// newClient returns a resty client that retries transport errors and 5xx
// responses opts.Attempts times in total, waiting opts.RetryWait in between.
func newClient(opts Options) *resty.Client {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	c := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(attempts - 1).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return r.StatusCode() >= http.StatusInternalServerError
		})
	return c
}

// get performs a GET and returns the body of a 200 response.
func get(ctx context.Context, c *resty.Client, url string, query map[string]string) ([]byte, error) {
	resp, err := c.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

func newResult(metric string) *Result {
	return &Result{Metric: metric, ScrapedAt: time.Now().UTC()}
}

// fail marks res as failed.
func (r *Result) fail(err error) *Result {
	r.Value = types.Missing()
	r.Err = err
	return r
}
