package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/crashdetector/crashdetector/agent/internal/config"
	"github.com/crashdetector/crashdetector/agent/internal/exporter"
	"github.com/crashdetector/crashdetector/agent/internal/insights"
	"github.com/crashdetector/crashdetector/agent/internal/scraper"
	"github.com/crashdetector/crashdetector/agent/internal/shipper"
	"github.com/crashdetector/crashdetector/agent/internal/tracker"
	"github.com/crashdetector/crashdetector/pkg/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file (optional unless set explicitly)")
	envPath := flag.String("env", ".env", "path to .env file")
	loop := flag.Bool("loop", false, "run cycles every agent.interval until interrupted")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load env file", "path", *envPath, "err", err)
	}

	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	load := config.LoadOptional
	if explicit {
		load = config.Load
	}
	cfg, err := load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	os.Exit(run(ctx, cfg, *configPath, *loop))
}

// run wires the agent and returns the process exit code.
func run(ctx context.Context, cfg *config.Config, configPath string, loop bool) int {
	a := cfg.Agent
	slog.Info("crashdetector-agent starting",
		"sources", len(a.Sources),
		"storage", a.Storage.Backend,
		"target_date", a.TargetDate,
		"loop", loop,
	)

	st, err := store.Open(ctx, a.Storage)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		return 1
	}
	defer st.Close()

	scrapers, err := scraper.NewAll(a.Sources, scraperOptions(a))
	if err != nil {
		slog.Error("failed to build scrapers", "err", err)
		return 1
	}

	var gen insights.Generator
	if a.Insights.Enabled {
		if a.Credentials.InsightsKey() == "" {
			slog.Warn("insights api key not set, snapshots will carry a placeholder", "env", a.Credentials.InsightsKeyEnv)
		}
		gen = insights.NewOpenRouter(a.Insights, a.Credentials.InsightsKey())
	}

	opts := []tracker.Option{}
	if l, ok := st.(store.Locker); ok {
		opts = append(opts, tracker.WithLocker(l))
	}
	if a.Metrics.TextfilePath != "" {
		opts = append(opts, tracker.WithPublishers(exporter.NewTextfile(a.Metrics.TextfilePath)))
		slog.Info("textfile export enabled", "path", a.Metrics.TextfilePath)
	}
	if a.Shipper.Kafka.Enabled() {
		ship := shipper.New(a.Shipper.Kafka)
		defer ship.Close()
		opts = append(opts, tracker.WithPublishers(ship))
		slog.Info("kafka shipper enabled", "brokers", a.Shipper.Kafka.Brokers, "topic", a.Shipper.Kafka.Topic)
	}

	tr := tracker.New(st, scrapers, gen, settingsFrom(a), opts...)

	if !loop {
		return exitCode(runOnce(ctx, tr))
	}
	return runLoop(ctx, tr, a, configPath)
}

func runOnce(ctx context.Context, tr *tracker.Tracker) error {
	snap, err := tr.RunCycle(ctx)
	if err != nil {
		return err
	}
	slog.Info("snapshot written", "id", snap.ID, "score", snap.RiskAssessment.Score, "level", snap.RiskAssessment.Level)
	return nil
}

func exitCode(err error) int {
	if err != nil {
		slog.Error("cycle aborted", "err", err)
		return 1
	}
	return 0
}

// runLoop runs a cycle immediately and then every interval, picking up
// config changes between cycles.
func runLoop(ctx context.Context, tr *tracker.Tracker, started config.AgentConfig, configPath string) int {
	interval := started.Interval
	reloaded := make(chan *config.Config, 1)
	go func() {
		if err := config.Watch(ctx, configPath, func(c *config.Config) {
			select {
			case <-reloaded:
			default:
			}
			reloaded <- c
		}); err != nil {
			slog.Warn("config watcher stopped", "err", err)
		}
	}()

	if err := runOnce(ctx, tr); errors.Is(err, tracker.ErrMissingCredential) {
		return exitCode(err)
	} else if err != nil {
		slog.Warn("cycle skipped", "err", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("crashdetector-agent shutting down")
			return 0

		case c := <-reloaded:
			a := c.Agent
			scrapers, err := scraper.NewAll(a.Sources, scraperOptions(a))
			if err != nil {
				slog.Error("reload: keeping previous sources", "err", err)
				continue
			}
			tr.Reconfigure(scrapers, settingsFrom(a))
			if a.Interval != interval {
				interval = a.Interval
				ticker.Reset(interval)
			}
			slog.Info("reload applied", "sources", len(a.Sources), "interval", interval)
			if pending := config.RestartRequired(started, a); len(pending) > 0 {
				slog.Warn("reload: changes need a restart to take effect", "sections", pending)
			}

		case <-ticker.C:
			if err := runOnce(ctx, tr); errors.Is(err, tracker.ErrMissingCredential) {
				return exitCode(err)
			} else if err != nil {
				slog.Warn("cycle skipped", "err", err)
			}
		}
	}
}

func scraperOptions(a config.AgentConfig) scraper.Options {
	return scraper.Options{
		APIKey:    a.Credentials.FinancialKey(),
		Timeout:   a.Fetch.Timeout,
		Attempts:  a.Fetch.Attempts,
		RetryWait: a.Fetch.RetryWait,
	}
}

func settingsFrom(a config.AgentConfig) tracker.Settings {
	return tracker.Settings{
		TargetDate:   a.Target(),
		HistoryLimit: a.HistoryLimit,
		Concurrency:  a.Concurrency,
		LockTTL:      a.LockTTL,
		FinancialKey: a.Credentials.FinancialKey(),
		Thresholds:   a.ClassifierThresholds(),
		Palette:      a.Palette,
	}
}
