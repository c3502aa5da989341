package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file whenever it changes and passes the new value
// to onChange. It watches the parent directory so atomic saves (write temp,
// rename over) are seen. A reload that fails to parse or validate is logged
// and skipped; the caller keeps its previous config. Watch blocks until ctx
// is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	slog.Info("config: watching", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(abs)
			if err != nil {
				slog.Error("config: reload failed, keeping previous", "path", abs, "err", err)
				continue
			}
			slog.Info("config: reloaded", "path", abs)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// RestartRequired lists the sections that differ between prev and next but
// are only read at start-up. Sources, fetch settings, thresholds, palette,
// target date, history limit, concurrency and interval apply on reload.
func RestartRequired(prev, next AgentConfig) []string {
	var out []string
	if prev.Storage != next.Storage {
		out = append(out, "storage")
	}
	if prev.Insights != next.Insights || prev.Credentials.InsightsKeyEnv != next.Credentials.InsightsKeyEnv {
		out = append(out, "insights")
	}
	if prev.Metrics != next.Metrics {
		out = append(out, "metrics")
	}
	pk, nk := prev.Shipper.Kafka, next.Shipper.Kafka
	if !slices.Equal(pk.Brokers, nk.Brokers) || pk.Topic != nk.Topic || pk.Attempts != nk.Attempts ||
		pk.Backoff != nk.Backoff || pk.WriteTimeout != nk.WriteTimeout {
		out = append(out, "shipper")
	}
	return out
}
