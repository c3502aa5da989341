package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-resty/resty/v2"

	"github.com/crashdetector/crashdetector/agent/internal/config"
	"github.com/crashdetector/crashdetector/pkg/types"
)

// Failure categories.
var (
	ErrMissingKey   = errors.New("insights: api key not configured")
	ErrDisabled     = errors.New("insights: disabled")
	ErrUnauthorized = errors.New("insights: unauthorized (401)")
	ErrRateLimited  = errors.New("insights: rate limited (429)")
	ErrParse        = errors.New("insights: response parsing failed")
)

// missingField is stored when the reply lacks one of the expected keys.
const missingField = "Analysis Data Missing"

const systemPrompt = "You are a financial analyst AI. Provide insights for demonstration purposes only."

// jsonObject matches from the first '{' to the last '}' across lines.
var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// Generator produces insights for a set of observations.
type Generator interface {
	Generate(ctx context.Context, metrics []types.MetricObservation) (types.Insights, error)
}

// OpenRouter is a Generator backed by the OpenRouter chat completions API.
type OpenRouter struct {
	cfg    config.InsightsConfig
	apiKey string
	client *resty.Client
}

// NewOpenRouter returns a generator. An empty apiKey is allowed; Generate
// then fails with ErrMissingKey without making a request.
func NewOpenRouter(cfg config.InsightsConfig, apiKey string) *OpenRouter {
	return &OpenRouter{
		cfg:    cfg,
		apiKey: apiKey,
		client: resty.New().SetTimeout(cfg.Timeout),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate requests insights for metrics.
func (o *OpenRouter) Generate(ctx context.Context, metrics []types.MetricObservation) (types.Insights, error) {
	if o.apiKey == "" {
		return types.Insights{}, ErrMissingKey
	}

	prompt, err := buildPrompt(metrics)
	if err != nil {
		return types.Insights{}, fmt.Errorf("insights: build prompt: %w", err)
	}

	var out chatResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetAuthToken(o.apiKey).
		SetHeader("HTTP-Referer", o.cfg.Referer).
		SetHeader("X-Title", o.cfg.Title).
		SetBody(chatRequest{
			Model: o.cfg.Model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: prompt},
			},
			ResponseFormat: map[string]string{"type": "json_object"},
		}).
		Post(o.cfg.Endpoint)
	if err != nil {
		return types.Insights{}, fmt.Errorf("insights: post: %w", err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized:
		return types.Insights{}, ErrUnauthorized
	case code == http.StatusTooManyRequests:
		return types.Insights{}, ErrRateLimited
	case code < 200 || code > 299:
		return types.Insights{}, fmt.Errorf("insights: unexpected status %d", code)
	}

	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return types.Insights{}, fmt.Errorf("%w: decode envelope: %v", ErrParse, err)
	}
	if len(out.Choices) == 0 {
		return types.Insights{}, fmt.Errorf("%w: no choices", ErrParse)
	}
	content := out.Choices[0].Message.Content
	ins, err := parseContent(content)
	if err != nil {
		slog.Error("insights: unparseable reply", "content", content, "err", err)
		return types.Insights{}, err
	}
	return ins, nil
}

// parseContent extracts the insight fields from the model's reply.
func parseContent(content string) (types.Insights, error) {
	span := jsonObject.FindString(content)
	if span == "" {
		return types.Insights{}, fmt.Errorf("%w: no JSON object in reply", ErrParse)
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(span), &fields); err != nil {
		return types.Insights{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return types.Insights{
		StockPicks:        field(fields, "stock_picks"),
		TASIOpportunities: field(fields, "tasi_opportunities"),
	}, nil
}

// field returns fields[key] as text. Non-string values are re-encoded as JSON.
func field(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return missingField
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return missingField
	}
	return string(b)
}
