// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

// Package daemon runs the long-lived server loops under one shutdown
// coordinator.
//
// Every loop is expected to run until the coordinator fires. A loop that
// returns before that is treated as a crash: the coordinator is triggered
// so the remaining loops drain, and Run reports the failure.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sailerrors "github.com/jensmeindertsma/sail/pkg/errors"
	"github.com/jensmeindertsma/sail/pkg/shutdown"
	"golang.org/x/sync/errgroup"
)

// ErrLoopExited is the shutdown cause recorded when a loop returns before
// shutdown was requested.
var ErrLoopExited = errors.New("server loop exited before shutdown")

// Loop is a server that listens until ctx is cancelled and then drains.
type Loop interface {
	Listen(ctx context.Context) error
}

// LoopFunc adapts a function to Loop.
type LoopFunc func(ctx context.Context) error

// Listen implements Loop.
func (f LoopFunc) Listen(ctx context.Context) error {
	return f(ctx)
}

// Service is a named loop.
type Service struct {
	Name string
	Loop Loop
}

// Config holds the daemon configuration.
type Config struct {
	Coordinator *shutdown.Coordinator

	// GracePeriod is how long loops get to drain after shutdown starts.
	// Run waits one second longer than this before giving up on them.
	GracePeriod time.Duration

	Logger *slog.Logger
}

// Daemon supervises a set of services.
type Daemon struct {
	config   Config
	services []Service
	slack    time.Duration
}

// New creates a daemon running services.
func New(cfg Config, services ...Service) *Daemon {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Coordinator == nil {
		cfg.Coordinator = shutdown.New(context.Background(), cfg.Logger)
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = 5 * time.Second
	}

	return &Daemon{
		config:   cfg,
		services: services,
		slack:    time.Second,
	}
}

// Run starts every service and blocks until shutdown completes. It returns
// nil when shutdown was requested from outside, even if draining timed out,
// and the loop failure when a service exited on its own.
func (d *Daemon) Run() error {
	coord := d.config.Coordinator
	logger := d.config.Logger
	ctx := coord.Context()

	var g errgroup.Group
	for _, svc := range d.services {
		g.Go(func() error {
			logger.Info("starting service", slog.String("service", svc.Name))
			err := svc.Loop.Listen(ctx)

			if !coord.Triggered() {
				if err == nil {
					err = fmt.Errorf("%s: %w", svc.Name, ErrLoopExited)
				} else {
					err = fmt.Errorf("%s: %w: %w", svc.Name, ErrLoopExited, err)
				}
				logger.Error("service stopped unexpectedly",
					slog.String("service", svc.Name),
					slog.String("error", err.Error()))
				coord.Trigger(err)
				return err
			}

			if err != nil {
				level := slog.LevelWarn
				if sailerrors.IsFatal(err) {
					level = slog.LevelError
				}
				logger.Log(ctx, level, "service stopped with error",
					slog.String("service", svc.Name),
					slog.String("error", err.Error()))
				return fmt.Errorf("%s: %w", svc.Name, err)
			}
			logger.Info("service stopped", slog.String("service", svc.Name))
			return nil
		})
	}

	<-coord.Done()

	err := shutdown.Wait(d.config.GracePeriod+d.slack, g.Wait)
	switch {
	case errors.Is(err, shutdown.ErrDrainTimeout):
		logger.Warn("services did not stop within the grace period",
			slog.Duration("grace_period", d.config.GracePeriod))
	case err != nil:
		logger.Warn("shutdown finished with errors", slog.String("error", err.Error()))
	default:
		logger.Info("shutdown complete")
	}

	if cause := coord.Cause(); errors.Is(cause, ErrLoopExited) {
		return cause
	}
	return nil
}
