package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/crashdetector/crashdetector/agent/internal/config"
	"github.com/crashdetector/crashdetector/pkg/types"
)

func testConfig(endpoint string) config.InsightsConfig {
	return config.InsightsConfig{
		Enabled:  true,
		Endpoint: endpoint,
		Model:    "test/model",
		Timeout:  2 * time.Second,
		Referer:  "https://github.com/crash-detector",
		Title:    "Crash Detector",
	}
}

var testMetrics = []types.MetricObservation{
	{Key: types.KeyUSDJPY, Name: types.NameUSDJPY, Value: types.Value(158.2), Signal: types.SignalHighStress, Volatility24h: types.Value(1.1)},
	{Key: types.KeyUS10Y, Name: types.NameUS10Y, Value: types.Missing(), Signal: types.SignalDataError},
}

// chatReply wraps content in a chat completions envelope.
func chatReply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]string{"role": "assistant", "content": content}}},
	})
	return string(b)
}

func TestOpenRouter_Success(t *testing.T) {
	var got chatRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(chatReply(`Sure! Here you go:
{"stock_picks": "<ul><li>Utilities</li></ul>", "tasi_opportunities": "<p>Aramco</p>"}
Hope this helps.`)))
	}))
	defer srv.Close()

	g := NewOpenRouter(testConfig(srv.URL), "sk-test")
	ins, err := g.Generate(context.Background(), testMetrics)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if ins.StockPicks != "<ul><li>Utilities</li></ul>" || ins.TASIOpportunities != "<p>Aramco</p>" {
		t.Errorf("insights = %+v", ins)
	}

	if headers.Get("Authorization") != "Bearer sk-test" {
		t.Errorf("Authorization = %q", headers.Get("Authorization"))
	}
	if headers.Get("HTTP-Referer") != "https://github.com/crash-detector" || headers.Get("X-Title") != "Crash Detector" {
		t.Errorf("attribution headers = %v", headers)
	}
	if got.Model != "test/model" || got.ResponseFormat["type"] != "json_object" {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if !strings.Contains(got.Messages[1].Content, `"value": 158.2`) || !strings.Contains(got.Messages[1].Content, `"value": null`) {
		t.Errorf("prompt does not embed metrics:\n%s", got.Messages[1].Content)
	}
}

func TestOpenRouter_MissingKeyMakesNoRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	_, err := NewOpenRouter(testConfig(srv.URL), "").Generate(context.Background(), testMetrics)
	if !errors.Is(err, ErrMissingKey) {
		t.Errorf("err = %v, want ErrMissingKey", err)
	}
	if called {
		t.Error("request made without api key")
	}
}

func TestOpenRouter_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"unauthorized", 401, `{"error": "bad key"}`, PlaceholderUnauthorized},
		{"rate limited", 429, `{"error": "slow down"}`, PlaceholderRateLimited},
		{"no json in reply", 200, chatReply("I cannot help with that."), PlaceholderParse},
		{"broken json in reply", 200, chatReply(`{"stock_picks": "a",`+"\n"+`"tasi_opportunities": }`), PlaceholderParse},
		{"no choices", 200, `{"choices": []}`, PlaceholderParse},
		{"envelope not json", 200, `<html>gateway</html>`, PlaceholderParse},
		{"server error", 502, `bad gateway`, "AI Analysis Failed: unexpected status 502..."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			ins, err := NewOpenRouter(testConfig(srv.URL), "sk-test").Generate(context.Background(), testMetrics)
			if err == nil {
				t.Fatalf("expected error, got %+v", ins)
			}
			got := Resolve(ins, err)
			if got.StockPicks != tc.want || got.TASIOpportunities != tc.want {
				t.Errorf("Resolve = %+v, want both %q", got, tc.want)
			}
		})
	}
}

func TestParseContent_MissingKey(t *testing.T) {
	ins, err := parseContent(`{"stock_picks": "<b>Gold miners</b>"}`)
	if err != nil {
		t.Fatal(err)
	}
	if ins.StockPicks != "<b>Gold miners</b>" {
		t.Errorf("stock_picks = %q", ins.StockPicks)
	}
	if ins.TASIOpportunities != "Analysis Data Missing" {
		t.Errorf("tasi_opportunities = %q, want Analysis Data Missing", ins.TASIOpportunities)
	}
}

func TestParseContent_NonStringValue(t *testing.T) {
	ins, err := parseContent(`{"stock_picks": ["A", "B"], "tasi_opportunities": null}`)
	if err != nil {
		t.Fatal(err)
	}
	if ins.StockPicks != `["A","B"]` {
		t.Errorf("stock_picks = %q", ins.StockPicks)
	}
	if ins.TASIOpportunities != missingField {
		t.Errorf("tasi_opportunities = %q", ins.TASIOpportunities)
	}
}

func TestPlaceholder(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrMissingKey, "AI Analysis Unavailable (Missing API Key)"},
		{ErrDisabled, "AI Analysis Disabled"},
		{ErrUnauthorized, "AI Configuration Error: Invalid API Key (401)"},
		{ErrRateLimited, "AI Busy: Rate Limit Exceeded (429)"},
		{ErrParse, "AI Error: Response Parsing Failed"},
		{errors.New("short"), "AI Analysis Failed: short..."},
		{fmt.Errorf("insights: unexpected status %d", 503), "AI Analysis Failed: unexpected status 503..."},
		{errors.New("0123456789012345678901234567890123456789"), "AI Analysis Failed: 012345678901234567890123456789..."},
	}
	for _, tc := range tests {
		if got := Placeholder(tc.err); got != tc.want {
			t.Errorf("Placeholder(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestResolve_Success(t *testing.T) {
	in := types.Insights{StockPicks: "a", TASIOpportunities: "b"}
	if got := Resolve(in, nil); got != in {
		t.Errorf("Resolve(ok) = %+v", got)
	}
}

func TestBuildPrompt_EmptyMetrics(t *testing.T) {
	p, err := buildPrompt(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p, "[]") {
		t.Errorf("prompt should embed an empty array:\n%s", p)
	}
}
