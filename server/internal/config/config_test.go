package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	persist "github.com/crashdetector/crashdetector/pkg/store"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	// Agent-only file; server section absent.
	p := writeConfig(t, `agent:
  target_date: "2026-11-28"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", s.HTTPPort, DefaultHTTPPort)
	}
	if s.Refresh.Interval != DefaultRefreshInterval {
		t.Errorf("refresh.interval: got %v, want %v", s.Refresh.Interval, DefaultRefreshInterval)
	}
	if s.Snapshot.TTL != DefaultSnapshotTTL {
		t.Errorf("snapshot.ttl: got %v, want %v", s.Snapshot.TTL, DefaultSnapshotTTL)
	}
	if s.Stream.Interval != DefaultStreamInterval {
		t.Errorf("stream.interval: got %v, want %v", s.Stream.Interval, DefaultStreamInterval)
	}
	if s.Store.Backend != persist.BackendFile || s.Store.File.CurrentFile != "data.json" {
		t.Errorf("store: got %+v, want file backend with data.json", s.Store)
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 9091
  storage:
    backend: redis
    redis:
      addr: "redis:6379"
  refresh:
    interval: 1m
  snapshot:
    ttl: 26h
  alerts:
    rules:
      - name: high-risk
        condition: "risk_score >= 70"
        severity: critical
    webhooks:
      - type: slack
        url_env: SLACK_URL
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != 9091 {
		t.Errorf("http_port: got %d, want 9091", s.HTTPPort)
	}
	if s.Store.Backend != persist.BackendRedis || s.Store.Redis.Addr != "redis:6379" {
		t.Errorf("store: got %+v", s.Store)
	}
	if s.Store.Redis.Prefix != "crashdetector" {
		t.Errorf("redis.prefix default: got %q", s.Store.Redis.Prefix)
	}
	if s.Refresh.Interval != time.Minute {
		t.Errorf("refresh.interval: got %v, want 1m", s.Refresh.Interval)
	}
	if s.Snapshot.TTL != 26*time.Hour {
		t.Errorf("snapshot.ttl: got %v, want 26h", s.Snapshot.TTL)
	}
	if len(s.Alerts.Rules) != 1 || s.Alerts.Rules[0].Cooldown != 15*time.Minute {
		t.Errorf("rules: got %+v, want one rule with default cooldown", s.Alerts.Rules)
	}
}

func TestLoad_StorageFallsBackToAgent(t *testing.T) {
	p := writeConfig(t, `agent:
  storage:
    file:
      dir: /var/lib/crashdetector
server:
  http_port: 8081
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	st := cfg.Server.Store
	if st.File.Dir != "/var/lib/crashdetector" {
		t.Errorf("file.dir: got %q, want agent's dir", st.File.Dir)
	}
	if st.Backend != persist.BackendFile || st.File.HistoryFile != "historical_data.json" {
		t.Errorf("store defaults not applied: %+v", st)
	}
}

func TestLoad_RedisPasswordFromEnv(t *testing.T) {
	t.Setenv("TEST_REDIS_PASSWORD", "hunter2")
	p := writeConfig(t, `server:
  storage:
    backend: redis
    redis:
      password_env: TEST_REDIS_PASSWORD
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Server.Store.Redis.Password; got != "hunter2" {
		t.Errorf("redis password: got %q, want hunter2", got)
	}
}

func TestWebhookURLResolution(t *testing.T) {
	t.Setenv("TEST_WEBHOOK_URL", "https://hooks.example.com/x")
	w := WebhookConfig{Type: "slack", URLEnv: "TEST_WEBHOOK_URL"}
	if got := w.URL(); got != "https://hooks.example.com/x" {
		t.Errorf("URL(): got %q", got)
	}
	if got := (WebhookConfig{Type: "http"}).URL(); got != "" {
		t.Errorf("URL() with no env: got %q, want empty", got)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"port out of range", "server:\n  http_port: 70000\n"},
		{"unknown backend", "server:\n  storage:\n    backend: s3\n"},
		{"unknown severity", "server:\n  alerts:\n    rules:\n      - name: a\n        condition: \"risk_score > 1\"\n        severity: page\n"},
		{"rule without condition", "server:\n  alerts:\n    rules:\n      - name: a\n"},
		{"duplicate rule", "server:\n  alerts:\n    rules:\n      - name: a\n        condition: \"risk_score > 1\"\n      - name: a\n        condition: \"risk_score > 2\"\n"},
		{"unknown webhook", "server:\n  alerts:\n    webhooks:\n      - type: pager\n        url_env: X\n"},
		{"negative ttl", "server:\n  snapshot:\n    ttl: -1h\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.yaml)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
