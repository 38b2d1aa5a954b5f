// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

// Package main is the sail daemon. It serves the public HTTP port and the
// control socket until it receives SIGTERM or SIGINT.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jensmeindertsma/sail"
	"github.com/jensmeindertsma/sail/pkg/apps/dashboard"
	"github.com/jensmeindertsma/sail/pkg/apps/registry"
	"github.com/jensmeindertsma/sail/pkg/daemon"
	sailerrors "github.com/jensmeindertsma/sail/pkg/errors"
	"github.com/jensmeindertsma/sail/pkg/handler"
	"github.com/jensmeindertsma/sail/pkg/health"
	"github.com/jensmeindertsma/sail/pkg/metrics"
	"github.com/jensmeindertsma/sail/pkg/parser/jsonl"
	"github.com/jensmeindertsma/sail/pkg/proxy"
	"github.com/jensmeindertsma/sail/pkg/router"
	"github.com/jensmeindertsma/sail/pkg/server/control"
	"github.com/jensmeindertsma/sail/pkg/settings"
	"github.com/jensmeindertsma/sail/pkg/shutdown"
	"github.com/jensmeindertsma/sail/pkg/socket"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxGoroutines is the health threshold for runaway connection handling.
const maxGoroutines = 50000

func main() {
	// .env file is optional
	_ = godotenv.Load()

	cfg, err := sail.NewConfig(env.Options{Prefix: sail.EnvPrefix})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("sail stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg sail.Config, logger *slog.Logger) error {
	m := metrics.New("sail", prometheus.DefaultRegisterer)

	store, err := settings.Load(cfg.SettingsFile, settings.CorruptPolicy(cfg.OnCorruptSettings),
		settings.WithLogger(logger),
		settings.WithObserver(m))
	if err != nil {
		return sailerrors.Wrap(err, "failed to load settings")
	}

	// A daemon without its control channel cannot be reconfigured, so
	// failing to attach it stops startup before anything is served.
	listener, err := socket.Attach(os.LookupEnv, cfg.ControlSocket)
	if err != nil {
		return sailerrors.NewFatal("attach", fmt.Errorf("failed to attach control socket: %w", err))
	}
	logger.Info("control socket attached", slog.String("address", listener.Addr().String()))

	coord := shutdown.New(context.Background(), logger)
	stop := coord.Notify(syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if cfg.MetricsPort != 0 {
		go startMetricsServer(coord.Context(), cfg.MetricsPort, logger)
	}
	if cfg.HealthPort != 0 {
		checker := health.NewChecker(10 * time.Second)
		checker.Register("settings", func(ctx context.Context) error {
			return store.LastSaveError()
		})
		checker.Register("goroutines", func(ctx context.Context) error {
			count := runtime.NumGoroutine()
			m.GoroutinesActive.Set(float64(count))
			if count > maxGoroutines {
				return fmt.Errorf("too many goroutines: %d > %d", count, maxGoroutines)
			}
			return nil
		})
		go startHealthServer(coord.Context(), cfg.HealthPort, checker, logger)
	}

	var h handler.Handler = handler.NewControl(store)
	h = handler.NewLogging(h, logger)
	h = handler.NewInstrumented(h, m)

	controlServer := control.New(control.Config{
		Listener:        listener,
		ShutdownTimeout: cfg.GracePeriod,
		Logger:          logger,
		Metrics:         m,
	}, jsonl.New(jsonl.DefaultMaxRecordSize), h)

	rt := router.New(router.Config{
		Store:     store,
		Dashboard: dashboard.New(store, logger),
		Registry:  registry.New(),
		Forwarder: proxy.NewReverseProxy(proxy.ReverseProxyConfig{
			DialTimeout: cfg.ProxyDialTimeout,
			Logger:      logger,
			Metrics:     m,
		}),
		Logger:  logger,
		Metrics: m,
	})

	// The port is read once; changing server_port takes effect on restart.
	httpServer := proxy.NewHTTP(proxy.HTTPConfig{
		Host:            cfg.HTTPHost,
		Port:            store.Get().ServerPort,
		Handler:         rt,
		ShutdownTimeout: cfg.GracePeriod,
		Logger:          logger,
		Metrics:         m,
	})

	cfgDaemon := daemon.Config{
		Coordinator: coord,
		GracePeriod: cfg.GracePeriod,
		Logger:      logger,
	}
	d := daemon.New(cfgDaemon,
		daemon.Service{Name: "control", Loop: controlServer},
		daemon.Service{Name: "http", Loop: httpServer},
	)
	return d.Run()
}

// setupLogger creates a structured logger with the specified level and format.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var logHandler slog.Handler
	if format == "json" {
		logHandler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(logHandler)
}

// startMetricsServer serves Prometheus metrics until ctx is cancelled.
func startMetricsServer(ctx context.Context, port int, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	serveAux(ctx, "metrics", port, mux, logger)
}

// startHealthServer serves the health endpoints until ctx is cancelled.
func startHealthServer(ctx context.Context, port int, checker *health.Checker, logger *slog.Logger) {
	serveAux(ctx, "health", port, checker.Mux(), logger)
}

func serveAux(ctx context.Context, name string, port int, h http.Handler, logger *slog.Logger) {
	addr := net.JoinHostPort("", strconv.Itoa(port))
	logger.Info("Starting "+name+" server", slog.String("address", addr))

	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	release := context.AfterFunc(ctx, func() {
		srv.Close()
	})
	defer release()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(name+" server error", slog.String("error", err.Error()))
	}
}
