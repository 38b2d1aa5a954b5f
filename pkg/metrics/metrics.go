// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for sail.
//
// A nil *Metrics is valid and records nothing, so components can take an
// optional Metrics without guarding every call.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Listener labels.
const (
	ListenerControl = "control"
	ListenerHTTP    = "http"
)

// Metrics holds all Prometheus metrics for sail.
type Metrics struct {
	// Connection metrics
	ActiveConnections  *prometheus.GaugeVec
	TotalConnections   *prometheus.CounterVec
	ConnectionDuration *prometheus.HistogramVec

	// Control channel metrics
	ControlRequests        *prometheus.CounterVec
	ControlRequestDuration *prometheus.HistogramVec

	// Public HTTP metrics
	HTTPRequests    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Backend metrics
	BackendErrors   *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec

	// Settings persistence
	SettingsSaves *prometheus.CounterVec

	// Resource metrics
	GoroutinesActive prometheus.Gauge
}

// New registers all metrics with reg under namespace. Use a fresh
// prometheus.NewRegistry in tests; each registry accepts one Metrics.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "sail"
	}
	factory := promauto.With(reg)

	return &Metrics{
		ActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_connections",
				Help:      "Number of currently open connections",
			},
			[]string{"listener"},
		),
		TotalConnections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Total number of accepted connections",
			},
			[]string{"listener", "status"},
		),
		ConnectionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "connection_duration_seconds",
				Help:      "Connection duration in seconds",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 600},
			},
			[]string{"listener"},
		),
		ControlRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "control_requests_total",
				Help:      "Total number of control requests by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		ControlRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "control_request_duration_seconds",
				Help:      "Control request handling time in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of public HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Public HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		BackendErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_errors_total",
				Help:      "Total number of failed forwards to application backends",
			},
			[]string{"application"},
		),
		BackendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_duration_seconds",
				Help:      "Time spent forwarding to application backends in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"application"},
		),
		SettingsSaves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settings_saves_total",
				Help:      "Total number of settings writes by status",
			},
			[]string{"status"},
		),
		GoroutinesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goroutines_active",
				Help:      "Number of goroutines at the last health check",
			},
		),
	}
}

// ObserveConnection tracks a connection lifecycle.
func (m *Metrics) ObserveConnection(listener string, f func() error) error {
	if m == nil {
		return f()
	}

	m.ActiveConnections.WithLabelValues(listener).Inc()
	defer m.ActiveConnections.WithLabelValues(listener).Dec()

	start := time.Now()
	defer func() {
		m.ConnectionDuration.WithLabelValues(listener).Observe(time.Since(start).Seconds())
	}()

	err := f()
	status := "success"
	if err != nil {
		status = "error"
	}
	m.TotalConnections.WithLabelValues(listener, status).Inc()

	return err
}

// ConnectionOpened records a connection whose lifetime is tracked elsewhere.
func (m *Metrics) ConnectionOpened(listener string) {
	if m == nil {
		return
	}
	m.ActiveConnections.WithLabelValues(listener).Inc()
	m.TotalConnections.WithLabelValues(listener, "success").Inc()
}

// ConnectionClosed pairs with ConnectionOpened.
func (m *Metrics) ConnectionClosed(listener string) {
	if m == nil {
		return
	}
	m.ActiveConnections.WithLabelValues(listener).Dec()
}

// ObserveControlRequest records one handled control request.
func (m *Metrics) ObserveControlRequest(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ControlRequests.WithLabelValues(kind, outcome).Inc()
	m.ControlRequestDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveRequest records one public HTTP request.
func (m *Metrics) ObserveRequest(route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveBackend records one forward to an application backend.
func (m *Metrics) ObserveBackend(application string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.BackendDuration.WithLabelValues(application).Observe(d.Seconds())
	if err != nil {
		m.BackendErrors.WithLabelValues(application).Inc()
	}
}

// SettingsSaved counts settings writes. It lets Metrics observe a
// settings.Store directly.
func (m *Metrics) SettingsSaved(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.SettingsSaves.WithLabelValues(status).Inc()
}
