// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	sailerrors "github.com/jensmeindertsma/sail/pkg/errors"
	"github.com/jensmeindertsma/sail/pkg/metrics"
	"github.com/jensmeindertsma/sail/pkg/shutdown"
)

// ErrShutdownTimeout is returned when in-flight requests outlive the
// shutdown timeout.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// HTTPConfig holds configuration for the public HTTP server.
type HTTPConfig struct {
	Host              string
	Port              uint16
	Handler           http.Handler
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
	Logger            *slog.Logger
	Metrics           *metrics.Metrics
}

// HTTPServer serves the public HTTP listener.
type HTTPServer struct {
	config HTTPConfig

	mu    sync.Mutex
	addr  net.Addr
	ready chan struct{}
}

// NewHTTP creates a new HTTP server.
func NewHTTP(cfg HTTPConfig) *HTTPServer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 30 * time.Second
	}

	return &HTTPServer{
		config: cfg,
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *HTTPServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, or nil before Ready.
func (s *HTTPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Listen binds the listener and serves until ctx is cancelled, then drains.
// Failing to bind, or the server stopping on its own, is a fatal error.
func (s *HTTPServer) Listen(ctx context.Context) error {
	address := net.JoinHostPort(s.config.Host, strconv.Itoa(int(s.config.Port)))
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return sailerrors.NewFatal("bind", fmt.Errorf("failed to listen on %s: %w", address, err))
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	close(s.ready)

	server := &http.Server{
		Handler:           s.config.Handler,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		ConnState:         s.connState,
		ErrorLog:          slog.NewLogLogger(s.config.Logger.Handler(), slog.LevelDebug),
	}

	s.config.Logger.Info("HTTP server started", slog.String("address", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(shutdown.Gate(ln, ctx.Done()))
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if ctx.Err() == nil {
			server.Close()
			return sailerrors.NewFatal("serve", fmt.Errorf("HTTP server stopped: %w", err))
		}
	}

	s.config.Logger.Info("shutdown signal received, closing HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		s.config.Logger.Warn("shutdown timeout exceeded, forcing HTTP connections closed")
		server.Close()
		return ErrShutdownTimeout
	}

	s.config.Logger.Info("HTTP server shutdown complete")
	return nil
}

func (s *HTTPServer) connState(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.config.Metrics.ConnectionOpened(metrics.ListenerHTTP)
	case http.StateHijacked, http.StateClosed:
		s.config.Metrics.ConnectionClosed(metrics.ListenerHTTP)
	}
}
