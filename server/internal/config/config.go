package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	persist "github.com/crashdetector/crashdetector/pkg/store"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules" validate:"dive"`
	Webhooks []WebhookConfig `yaml:"webhooks" validate:"dive"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name" validate:"required"`

	// Condition is a simple expression: "risk_score >= 70", "level == CRITICAL",
	// "usd_jpy > 158", "usd_jpy.signal == CRITICAL_SHOCK",
	// "usd_jpy.volatility >= 2", "days_remaining < 7".
	Condition string `yaml:"condition" validate:"required"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity" default:"warning" validate:"oneof=critical warning info"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	Cooldown time.Duration `yaml:"cooldown" default:"15m"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type" validate:"oneof=teams slack http"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env" validate:"required"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultHTTPPort        = 8080
	DefaultRefreshInterval = 30 * time.Second
	DefaultSnapshotTTL     = 48 * time.Hour
	DefaultStreamInterval  = 5 * time.Second
)

// Config holds the server-side configuration parsed from config.yaml.
// Of the `agent:` section only `storage` is read, as the fallback when the
// server names no storage of its own.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Agent  agentSection `yaml:"agent"`
}

type agentSection struct {
	Storage *persist.Config `yaml:"storage"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on.
	HTTPPort int `yaml:"http_port" default:"8080" validate:"min=1,max=65535"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`

	// Storage is where the agent persists snapshots. When absent the
	// agent's storage section is used.
	Storage *persist.Config `yaml:"storage"`

	// Refresh controls how often persisted snapshots are reloaded.
	Refresh RefreshConfig `yaml:"refresh"`

	// Snapshot controls staleness of the latest snapshot.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Stream controls the WebSocket broadcast.
	Stream StreamConfig `yaml:"stream"`

	// Alerts holds rule definitions and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`

	// Store is the resolved storage configuration. Set by Load.
	Store persist.Config `yaml:"-"`
}

// RefreshConfig controls reloading from the shared store.
type RefreshConfig struct {
	// Interval is the polling period. The file backend is additionally
	// watched for changes, so this is only a fallback there.
	Interval time.Duration `yaml:"interval" default:"30s"`
}

// SnapshotConfig controls staleness reporting.
type SnapshotConfig struct {
	// TTL is how old the latest snapshot may get before it is reported stale.
	// The agent runs daily by default, so the default allows one missed run.
	TTL time.Duration `yaml:"ttl" default:"48h"`
}

// StreamConfig controls the WebSocket hub.
type StreamConfig struct {
	// Interval is the periodic broadcast period. New snapshots are pushed
	// immediately regardless.
	Interval time.Duration `yaml:"interval" default:"5s"`
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("server config: defaults: %w", err)
	}
	if err := resolveStorage(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// resolveStorage picks the server or agent storage section and fills its
// defaults into Server.Store.
func resolveStorage(cfg *Config) error {
	src := cfg.Server.Storage
	if src == nil {
		src = cfg.Agent.Storage
	}
	var st persist.Config
	if src != nil {
		st = *src
	}
	if err := defaults.Set(&st); err != nil {
		return fmt.Errorf("storage defaults: %w", err)
	}
	if st.Redis.PasswordEnv != "" {
		st.Redis.Password = os.Getenv(st.Redis.PasswordEnv)
	}
	cfg.Server.Store = st
	return nil
}

var structValidator = validator.New()

// validate checks struct tags, then constraints tags cannot express.
func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg.Server); err != nil {
		return err
	}
	s := cfg.Server
	if s.Refresh.Interval <= 0 {
		return fmt.Errorf("server.refresh.interval must be positive")
	}
	if s.Snapshot.TTL <= 0 {
		return fmt.Errorf("server.snapshot.ttl must be positive")
	}
	if s.Stream.Interval <= 0 {
		return fmt.Errorf("server.stream.interval must be positive")
	}
	seen := make(map[string]bool, len(s.Alerts.Rules))
	for i, r := range s.Alerts.Rules {
		if seen[r.Name] {
			return fmt.Errorf("server.alerts.rules[%d]: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = true
		if r.Cooldown < 0 {
			return fmt.Errorf("server.alerts.rules[%d]: cooldown must not be negative", i)
		}
	}
	return nil
}
