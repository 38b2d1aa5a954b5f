// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	sailerrors "github.com/jensmeindertsma/sail/pkg/errors"
	"github.com/jensmeindertsma/sail/pkg/handler"
	"github.com/jensmeindertsma/sail/pkg/metrics"
	"github.com/jensmeindertsma/sail/pkg/parser"
	"github.com/jensmeindertsma/sail/pkg/shutdown"
)

// ErrShutdownTimeout is returned when connections outlive the shutdown timeout.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// ErrNoListener is returned by Listen when Config.Listener is nil.
var ErrNoListener = errors.New("control server has no listener")

// Config holds the control server configuration.
type Config struct {
	// Listener is the already attached control socket. The server takes
	// ownership and closes it on shutdown.
	Listener net.Listener

	// ShutdownTimeout is the maximum time to wait for open connections to
	// finish after shutdown begins.
	ShutdownTimeout time.Duration

	// Logger for server events
	Logger *slog.Logger

	// Metrics is optional
	Metrics *metrics.Metrics
}

// Server accepts control connections and serves requests on each of them
// sequentially.
type Server struct {
	config  Config
	parser  parser.Parser
	handler handler.Handler
	tracker shutdown.Tracker
}

// New creates a control server with the given configuration, parser, and handler.
func New(cfg Config, p parser.Parser, h handler.Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	return &Server{
		config:  cfg,
		parser:  p,
		handler: h,
	}
}

// Listen serves connections until ctx is cancelled, then stops accepting,
// drains open connections and returns. Any other reason for the accept
// loop to end is returned as an error.
func (s *Server) Listen(ctx context.Context) error {
	if s.config.Listener == nil {
		return ErrNoListener
	}
	listener := shutdown.Gate(s.config.Listener, ctx.Done())
	release := shutdown.CloseOnDone(ctx, listener)
	defer release()

	s.config.Logger.Info("control server started", slog.String("address", listener.Addr().String()))

	acceptErr := s.accept(ctx, listener)

	if ctx.Err() == nil {
		// The loop ended without a shutdown request.
		listener.Close()
		s.drain()
		return sailerrors.NewFatal("accept", fmt.Errorf("control listener stopped: %w", acceptErr))
	}

	s.config.Logger.Info("shutdown signal received, control listener closed")
	return s.drain()
}

func (s *Server) accept(ctx context.Context, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return err
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.config.Logger.Error("failed to accept connection", slog.String("error", err.Error()))
			return err
		}

		// Shutdown wins over a connection that raced it.
		if ctx.Err() != nil {
			conn.Close()
			return net.ErrClosed
		}

		s.tracker.Go(func() {
			err := s.config.Metrics.ObserveConnection(metrics.ListenerControl, func() error {
				return s.handleConn(ctx, conn)
			})
			if err != nil {
				s.config.Logger.Debug("control connection error", slog.String("error", err.Error()))
			}
		})
	}
}

func (s *Server) drain() error {
	if err := s.tracker.Drain(s.config.ShutdownTimeout); err != nil {
		s.config.Logger.Warn("shutdown timeout exceeded, abandoning control connections")
		return ErrShutdownTimeout
	}
	s.config.Logger.Info("all control connections closed")
	return nil
}

// handleConn serves one connection until the peer disconnects, a record is
// malformed, or shutdown begins while the connection waits for a request.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	hctx := &handler.Context{
		SessionID:  uuid.New().String(),
		RemoteAddr: addrString(conn.RemoteAddr()),
		Protocol:   "unix",
	}
	logger := s.config.Logger.With(slog.String("session", hctx.SessionID))
	logger.Debug("control connection established")

	// Wake a pending read once shutdown begins; the parser then refuses
	// any request it already has buffered.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	reader := bufio.NewReader(conn)
	for {
		err := s.parser.Parse(ctx, reader, conn, s.handler, hctx)
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF), errors.Is(err, parser.ErrClosing):
			logger.Debug("control connection closed")
			return nil
		case ctx.Err() != nil && errors.Is(err, os.ErrDeadlineExceeded):
			logger.Debug("control connection closed for shutdown")
			return nil
		case sailerrors.KindOf(err) == sailerrors.Protocol:
			logger.Warn("closing control connection after malformed record", slog.String("error", err.Error()))
			return err
		default:
			return sailerrors.NewTransport("serve", hctx.SessionID, err)
		}
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
