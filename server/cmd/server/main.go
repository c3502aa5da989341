package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/crashdetector/crashdetector/pkg/metrics"
	persist "github.com/crashdetector/crashdetector/pkg/store"
	"github.com/crashdetector/crashdetector/pkg/types"
	"github.com/crashdetector/crashdetector/server/internal/alerts"
	"github.com/crashdetector/crashdetector/server/internal/api"
	"github.com/crashdetector/crashdetector/server/internal/config"
	"github.com/crashdetector/crashdetector/server/internal/receiver"
	"github.com/crashdetector/crashdetector/server/internal/store"
	"github.com/crashdetector/crashdetector/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envPath := flag.String("env", ".env", "path to .env file")
	uiDir := flag.String("ui-dir", "", "serve dashboard static files from this directory; leave empty to disable")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load env file", "path", *envPath, "err", err)
	}

	slog.Info("crashdetector-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	s := cfg.Server

	slog.Info("config loaded",
		"http_port", s.HTTPPort,
		"storage", s.Store.Backend,
		"refresh_interval", s.Refresh.Interval,
		"snapshot_ttl", s.Snapshot.TTL,
		"alert_rules", len(s.Alerts.Rules),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src, err := persist.Open(ctx, s.Store)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer src.Close()

	// Alerts engine: evaluates rules on every new snapshot.
	alertEngine, err := alerts.New(s.Alerts)
	if err != nil {
		slog.Error("failed to build alert rules", "err", err)
		os.Exit(1)
	}

	st := store.New(s.Snapshot.TTL)
	recorder := metrics.New()
	hub := ws.New(st, s.Stream.Interval)

	opts := []receiver.Option{
		receiver.WithHandler(alertEngine.Evaluate),
		receiver.WithHandler(recorder.Observe),
		receiver.WithHandler(func(*types.Snapshot) { hub.Notify() }),
	}
	if fs, ok := src.(*persist.FileStore); ok {
		opts = append(opts, receiver.WithWatchFile(fs.CurrentPath()))
	}
	rec := receiver.New(src, st, s.Refresh.Interval, opts...)

	go func() {
		if err := rec.Run(ctx); err != nil {
			slog.Error("receiver stopped", "err", err)
		}
	}()
	go hub.Run(ctx)

	// REST API, /metrics and the WebSocket hub share HTTPPort.
	e := api.New(st, alertEngine, recorder.Registry())
	e.GET("/ws/stream", echo.WrapHandler(hub))

	if *uiDir != "" {
		e.GET("/*", echo.WrapHandler(spaHandler(*uiDir)))
		slog.Info("serving UI static files", "dir", *uiDir)
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.HTTPPort),
		Handler: e,
	}
	go func() {
		slog.Info("HTTP server listening", "port", s.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("crashdetector-server shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer done()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown", "err", err)
	}
	alertEngine.Wait()
}

// spaHandler serves files from dir and falls back to index.html for unknown
// paths so client-side routing works.
func spaHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		files.ServeHTTP(w, r)
	})
}
