// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

// Package shutdown broadcasts a one-way stop signal to every accept loop and
// connection, and bounds how long they may take to drain.
//
// A Coordinator starts running and moves to stopping exactly once. The stop
// is observable at any time after it happened: late subscribers see it
// immediately through Done, and Triggered answers without blocking. Accept
// loops check Triggered after every accept so that a stop request always
// wins over a connection that arrived at the same moment.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"
)

var (
	// ErrTerminated is the cause recorded when a termination signal arrives.
	ErrTerminated = errors.New("termination signal received")

	// ErrDrainTimeout is returned when connections outlive the grace period.
	ErrDrainTimeout = errors.New("drain timeout exceeded")
)

// Coordinator owns the shutdown state of the daemon.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	logger *slog.Logger
}

// New returns a running coordinator. Cancelling parent also triggers it.
func New(parent context.Context, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancelCause(parent)
	return &Coordinator{ctx: ctx, cancel: cancel, logger: logger}
}

// Context is cancelled when shutdown is triggered.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Done is closed when shutdown is triggered and stays closed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Trigger moves the coordinator to stopping. Only the first cause is kept;
// later calls are no-ops.
func (c *Coordinator) Trigger(cause error) {
	if cause == nil {
		cause = context.Canceled
	}
	if !c.Triggered() {
		c.logger.Info("shutdown triggered", slog.String("cause", cause.Error()))
	}
	c.cancel(cause)
}

// Triggered reports whether shutdown has begun.
func (c *Coordinator) Triggered() bool {
	return c.ctx.Err() != nil
}

// Cause returns why shutdown began, or nil while running.
func (c *Coordinator) Cause() error {
	return context.Cause(c.ctx)
}

// Notify triggers shutdown when any of signals arrives. The returned
// function stops listening.
func (c *Coordinator) Notify(signals ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)

	quit := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case sig := <-ch:
			c.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
			c.Trigger(fmt.Errorf("%w: %s", ErrTerminated, sig))
		case <-quit:
		case <-c.ctx.Done():
		}
	}()

	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(quit)
		})
	}
}

// Wait blocks until fn returns or timeout elapses. It returns fn's error,
// or ErrDrainTimeout if fn was still running.
func Wait(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return ErrDrainTimeout
	}
}
