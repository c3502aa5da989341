package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/crashdetector/crashdetector/agent/internal/compute"
	"github.com/crashdetector/crashdetector/pkg/store"
	"github.com/crashdetector/crashdetector/pkg/types"
)

// Source types.
const (
	SourceAlphaVantageFX    = "alphavantage_fx"
	SourceAlphaVantageYield = "alphavantage_yield"
	SourcePrometheus        = "prometheus"
	SourceStatic            = "static"
)

// DefaultAlphaVantageEndpoint is the Alpha Vantage query URL.
const DefaultAlphaVantageEndpoint = "https://www.alphavantage.co/query"

// DefaultMOVEProxy is the fixed MOVE index stand-in used when no live
// source is configured.
const DefaultMOVEProxy = 45.0

// Config is the agent's view of the config file. A server: section, if
// present, is ignored here.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// TargetDate is the calendar date the countdown runs to.
	TargetDate string `yaml:"target_date" default:"2026-11-28" validate:"required,datetime=2006-01-02"`

	// HistoryLimit is the number of snapshots kept in the history window.
	HistoryLimit int `yaml:"history_limit" default:"30" validate:"min=1"`

	// Interval is the time between cycles in loop mode.
	Interval time.Duration `yaml:"interval" default:"24h"`

	// Concurrency bounds the number of metric fetches in flight.
	Concurrency int `yaml:"concurrency" default:"4" validate:"min=1"`

	// LockTTL bounds how long a cycle may hold the distributed run-lock.
	LockTTL time.Duration `yaml:"lock_ttl" default:"10m"`

	Credentials CredentialsConfig `yaml:"credentials"`
	Fetch       FetchConfig       `yaml:"fetch"`

	// Sources lists the metric fetchers. Empty means DefaultSources().
	Sources []Source `yaml:"sources" validate:"dive"`

	// Thresholds overrides the classifier ladders. Only the fields given are
	// replaced; the rest keep the default ladder for that metric key.
	Thresholds map[string]LadderOverride `yaml:"thresholds"`

	// Palette overrides the level colours.
	Palette compute.Palette `yaml:"palette"`

	Insights InsightsConfig `yaml:"insights"`
	Storage  store.Config   `yaml:"storage"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Shipper  ShipperConfig  `yaml:"shipper"`
}

// CredentialsConfig names the environment variables holding API keys.
type CredentialsConfig struct {
	FinancialKeyEnv string `yaml:"financial_key_env" default:"FINANCIAL_API_KEY"`
	InsightsKeyEnv  string `yaml:"insights_key_env" default:"OPENROUTER_API_KEY"`
}

// FinancialKey returns the data-provider key resolved from the environment.
func (c CredentialsConfig) FinancialKey() string { return getenv(c.FinancialKeyEnv) }

// InsightsKey returns the LLM API key resolved from the environment.
func (c CredentialsConfig) InsightsKey() string { return getenv(c.InsightsKeyEnv) }

// FetchConfig controls per-fetch timeout and retry.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout" default:"15s"`
	Attempts  int           `yaml:"attempts" default:"3" validate:"min=1"`
	RetryWait time.Duration `yaml:"retry_wait" default:"2s"`
}

// Source describes one metric fetcher.
type Source struct {
	// Metric is the metric key this source feeds, e.g. "usd_jpy".
	Metric string `yaml:"metric" validate:"required"`

	// Type is one of: alphavantage_fx | alphavantage_yield | prometheus | static.
	Type string `yaml:"type" validate:"required,oneof=alphavantage_fx alphavantage_yield prometheus static"`

	// Endpoint overrides the provider URL. Required for prometheus.
	Endpoint string `yaml:"endpoint"`

	// FromCurrency and ToCurrency select the pair for alphavantage_fx.
	FromCurrency string `yaml:"from_currency"`
	ToCurrency   string `yaml:"to_currency"`

	// Maturity selects the treasury maturity for alphavantage_yield.
	Maturity string `yaml:"maturity"`

	// Family and Labels select the series for prometheus. Matching series
	// are summed.
	Family string            `yaml:"family"`
	Labels map[string]string `yaml:"labels"`

	// Value is the fixed reading for static.
	Value float64 `yaml:"value"`
}

// InsightsConfig configures the LLM commentary request.
type InsightsConfig struct {
	Enabled  bool          `yaml:"enabled" default:"true"`
	Endpoint string        `yaml:"endpoint" default:"https://openrouter.ai/api/v1/chat/completions"`
	Model    string        `yaml:"model" default:"tngtech/tng-r1t-chimera:free"`
	Timeout  time.Duration `yaml:"timeout" default:"30s"`
	Referer  string        `yaml:"referer" default:"https://github.com/crash-detector"`
	Title    string        `yaml:"title" default:"Crash Detector"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	// TextfilePath, when set, receives the latest snapshot in exposition format.
	TextfilePath string `yaml:"textfile_path"`
}

// ShipperConfig configures snapshot fan-out.
type ShipperConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig configures the Kafka shipper. It is disabled when Brokers is empty.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic" default:"crashdetector.snapshots"`
	Attempts     int           `yaml:"attempts" default:"3" validate:"min=1"`
	Backoff      time.Duration `yaml:"backoff" default:"1s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// DefaultSources returns the four production fetchers.
func DefaultSources() []Source {
	return []Source{
		{Metric: types.KeyUSDJPY, Type: SourceAlphaVantageFX, FromCurrency: "USD", ToCurrency: "JPY"},
		{Metric: types.KeyUSDCNH, Type: SourceAlphaVantageFX, FromCurrency: "USD", ToCurrency: "CNH"},
		{Metric: types.KeyMOVEProxy, Type: SourceStatic, Value: DefaultMOVEProxy},
		{Metric: types.KeyUS10Y, Type: SourceAlphaVantageYield, Maturity: "10year"},
	}
}

// LadderOverride is a partial compute.Ladder. Nil fields keep the default.
type LadderOverride struct {
	Critical        *float64 `yaml:"critical"`
	High            *float64 `yaml:"high"`
	Rising          *float64 `yaml:"rising"`
	RisingInclusive *bool    `yaml:"rising_inclusive"`
	VolatilityGate  *float64 `yaml:"volatility_gate"`
}

// apply returns base with the set fields of o replaced.
func (o LadderOverride) apply(base compute.Ladder) compute.Ladder {
	if o.Critical != nil {
		base.Critical = *o.Critical
	}
	if o.High != nil {
		base.High = *o.High
	}
	if o.Rising != nil {
		base.Rising = *o.Rising
	}
	if o.RisingInclusive != nil {
		base.RisingInclusive = *o.RisingInclusive
	}
	if o.VolatilityGate != nil {
		base.VolatilityGate = *o.VolatilityGate
	}
	return base
}

// ClassifierThresholds returns the defaults with configured overrides merged
// field by field.
func (a AgentConfig) ClassifierThresholds() compute.Thresholds {
	th := compute.DefaultThresholds()
	for k, o := range a.Thresholds {
		th[k] = o.apply(th[k])
	}
	return th
}

// Target parses TargetDate as midnight UTC.
func (a AgentConfig) Target() time.Time {
	t, err := time.Parse(types.TargetDateLayout, a.TargetDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Default returns the built-in configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("config: defaults: %v", err))
	}
	finish(cfg)
	return cfg
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	finish(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadOptional behaves like Load but returns Default() when path does not exist.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// finish fills values that struct tags cannot express.
func finish(cfg *Config) {
	a := &cfg.Agent
	if len(a.Sources) == 0 {
		a.Sources = DefaultSources()
	}
	for i := range a.Sources {
		src := &a.Sources[i]
		switch src.Type {
		case SourceAlphaVantageFX, SourceAlphaVantageYield:
			if src.Endpoint == "" {
				src.Endpoint = DefaultAlphaVantageEndpoint
			}
			if src.Type == SourceAlphaVantageYield && src.Maturity == "" {
				src.Maturity = "10year"
			}
		}
	}
	if a.Storage.Redis.PasswordEnv != "" {
		a.Storage.Redis.Password = getenv(a.Storage.Redis.PasswordEnv)
	}
}

var structValidator = validator.New()

// validate checks struct tags, then semantic constraints tags cannot express.
func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return err
	}

	a := cfg.Agent
	if a.Interval <= 0 {
		return fmt.Errorf("agent.interval must be positive")
	}
	if a.LockTTL <= 0 {
		return fmt.Errorf("agent.lock_ttl must be positive")
	}
	if a.Fetch.Timeout <= 0 {
		return fmt.Errorf("agent.fetch.timeout must be positive")
	}
	if a.Fetch.RetryWait < 0 {
		return fmt.Errorf("agent.fetch.retry_wait must not be negative")
	}
	if a.Credentials.FinancialKeyEnv == "" {
		return fmt.Errorf("agent.credentials.financial_key_env is required")
	}

	seen := make(map[string]bool, len(a.Sources))
	for i, src := range a.Sources {
		if seen[src.Metric] {
			return fmt.Errorf("sources[%d]: duplicate metric %q", i, src.Metric)
		}
		seen[src.Metric] = true
		if types.MetricName(src.Metric) == "" {
			return fmt.Errorf("sources[%d]: unknown metric %q", i, src.Metric)
		}
		switch src.Type {
		case SourceAlphaVantageFX:
			if src.FromCurrency == "" || src.ToCurrency == "" {
				return fmt.Errorf("sources[%d] %q: from_currency and to_currency are required", i, src.Metric)
			}
		case SourcePrometheus:
			if src.Endpoint == "" || src.Family == "" {
				return fmt.Errorf("sources[%d] %q: endpoint and family are required", i, src.Metric)
			}
		}
	}

	for key := range a.Thresholds {
		if types.MetricName(key) == "" {
			return fmt.Errorf("thresholds: unknown metric %q", key)
		}
	}
	for key, l := range a.ClassifierThresholds() {
		if l.Critical <= 0 || l.High <= 0 || l.Rising <= 0 {
			return fmt.Errorf("thresholds %q: critical, high and rising must be positive", key)
		}
		if !(l.Critical >= l.High && l.High >= l.Rising) {
			return fmt.Errorf("thresholds %q: want critical >= high >= rising", key)
		}
		if l.VolatilityGate < 0 {
			return fmt.Errorf("thresholds %q: volatility_gate must not be negative", key)
		}
	}
	for level := range a.Palette {
		switch level {
		case types.LevelUnknown, types.LevelLow, types.LevelModerate, types.LevelElevated, types.LevelCritical:
		default:
			return fmt.Errorf("palette: unknown level %q", level)
		}
	}

	if a.Shipper.Kafka.Enabled() && a.Shipper.Kafka.Topic == "" {
		return fmt.Errorf("agent.shipper.kafka.topic is required")
	}
	return nil
}

func getenv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
