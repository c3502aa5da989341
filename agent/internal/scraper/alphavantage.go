package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/crashdetector/crashdetector/agent/internal/config"
	"github.com/crashdetector/crashdetector/pkg/types"
)

// Alpha Vantage response keys.
const (
	avNote         = "Note"
	avInformation  = "Information"
	avErrorMessage = "Error Message"
	avFXBlock      = "Realtime Currency Exchange Rate"
	avFXRate       = "5. Exchange Rate"
)

type fxScraper struct {
	src    config.Source
	apiKey string
	client *resty.Client
}

func (s *fxScraper) Metric() string { return s.src.Metric }

// Scrape fetches the realtime exchange rate for the configured pair.
func (s *fxScraper) Scrape(ctx context.Context) *Result {
	res := newResult(s.src.Metric)

	body, err := get(ctx, s.client, s.src.Endpoint, map[string]string{
		"function":      "CURRENCY_EXCHANGE_RATE",
		"from_currency": s.src.FromCurrency,
		"to_currency":   s.src.ToCurrency,
		"apikey":        s.apiKey,
	})
	if err == nil {
		res.Value, err = parseFX(body)
	}
	if err != nil {
		slog.Warn("scraper: fx fetch failed", "metric", s.src.Metric,
			"pair", s.src.FromCurrency+"/"+s.src.ToCurrency, "err", err)
		return res.fail(fmt.Errorf("alphavantage fx %q: %w", s.src.Metric, err))
	}
	return res
}

func parseFX(body []byte) (types.Reading, error) {
	doc, err := decodeAV(body)
	if err != nil {
		return types.Missing(), err
	}
	raw, ok := doc[avFXBlock]
	if !ok {
		return types.Missing(), fmt.Errorf("%w: %q block absent", ErrNoData, avFXBlock)
	}
	var block map[string]string
	if err := json.Unmarshal(raw, &block); err != nil {
		return types.Missing(), fmt.Errorf("decode %q: %w", avFXBlock, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(block[avFXRate]), 64)
	if err != nil {
		return types.Missing(), fmt.Errorf("%w: rate %q", ErrNoData, block[avFXRate])
	}
	return types.Value(v), nil
}

type yieldScraper struct {
	src    config.Source
	apiKey string
	client *resty.Client
}

func (s *yieldScraper) Metric() string { return s.src.Metric }

// Scrape fetches the daily treasury yield series and returns the newest
// datapoint that parses as a number. The provider marks holidays with ".".
func (s *yieldScraper) Scrape(ctx context.Context) *Result {
	res := newResult(s.src.Metric)

	body, err := get(ctx, s.client, s.src.Endpoint, map[string]string{
		"function": "TREASURY_YIELD",
		"interval": "daily",
		"maturity": s.src.Maturity,
		"apikey":   s.apiKey,
	})
	if err == nil {
		res.Value, err = parseYield(body)
	}
	if err != nil {
		slog.Warn("scraper: yield fetch failed", "metric", s.src.Metric, "maturity", s.src.Maturity, "err", err)
		return res.fail(fmt.Errorf("alphavantage yield %q: %w", s.src.Metric, err))
	}
	return res
}

func parseYield(body []byte) (types.Reading, error) {
	doc, err := decodeAV(body)
	if err != nil {
		return types.Missing(), err
	}
	var series []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	}
	if raw, ok := doc["data"]; ok {
		if err := json.Unmarshal(raw, &series); err != nil {
			return types.Missing(), fmt.Errorf("decode data: %w", err)
		}
	}
	for _, p := range series {
		if v, err := strconv.ParseFloat(strings.TrimSpace(p.Value), 64); err == nil {
			return types.Value(v), nil
		}
	}
	return types.Missing(), fmt.Errorf("%w: no numeric datapoint", ErrNoData)
}

// decodeAV decodes the top-level object and maps provider notices to errors.
func decodeAV(body []byte) (map[string]json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	for _, k := range []string{avNote, avInformation} {
		if raw, ok := doc[k]; ok {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, message(raw))
		}
	}
	if raw, ok := doc[avErrorMessage]; ok {
		return nil, fmt.Errorf("%w: %s", ErrProvider, message(raw))
	}
	return doc, nil
}

func message(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}
