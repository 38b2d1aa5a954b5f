// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

// Package router dispatches public HTTP requests by their Host header.
package router

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/jensmeindertsma/sail/pkg/metrics"
	"github.com/jensmeindertsma/sail/pkg/settings"
)

// Forwarder relays a request to an application backend and writes the
// backend's response, or a 502 when the backend cannot be reached.
type Forwarder interface {
	Forward(w http.ResponseWriter, r *http.Request, application string, addr netip.AddrPort)
}

// Config wires the router to its collaborators.
type Config struct {
	Store     *settings.Store
	Dashboard http.Handler
	Registry  http.Handler
	Forwarder Forwarder
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Router is the public HTTP entry point.
type Router struct {
	config Config
}

var _ http.Handler = (*Router)(nil)

// New creates a router.
func New(cfg Config) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{config: cfg}
}

// ServeHTTP implements http.Handler. Settings are read once per request so
// that changes made over the control channel apply to the next request.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w}

	decision := Decide(rt.config.Store.Get(), r.Host)

	switch decision.Kind {
	case BadRequest:
		http.Error(rec, "400 Bad Request", http.StatusBadRequest)
	case Dashboard:
		rt.config.Dashboard.ServeHTTP(rec, r)
	case Registry:
		rt.config.Registry.ServeHTTP(rec, r)
	case Placeholder:
		rec.Header().Set("Content-Type", "text/plain; charset=utf-8")
		rec.WriteHeader(http.StatusOK)
		fmt.Fprintf(rec, "Placeholder page for app `%s`\n", decision.Application)
	case Proxy:
		rt.config.Forwarder.Forward(rec, r, decision.Application, decision.Address)
	default:
		http.Error(rec, "421 Unknown Host", http.StatusMisdirectedRequest)
	}

	status := rec.Status()
	rt.config.Metrics.ObserveRequest(decision.Kind.String(), strconv.Itoa(status), time.Since(start))
	rt.config.Logger.Debug("request routed",
		slog.String("host", r.Host),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("route", decision.Kind.String()),
		slog.Int("status", status))
}

// statusRecorder remembers the status code written through it. Unwrap lets
// http.ResponseController reach the underlying writer for flushing and
// hijacking.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Status returns the recorded status, 200 if nothing was written.
func (r *statusRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
