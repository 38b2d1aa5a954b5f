// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveConnection(t *testing.T) {
	m := New("test", prometheus.NewRegistry())

	err := m.ObserveConnection(ListenerControl, func() error {
		if got := testutil.ToFloat64(m.ActiveConnections.WithLabelValues(ListenerControl)); got != 1 {
			t.Errorf("active during connection = %v, want 1", got)
		}
		return errors.New("reset")
	})
	if err == nil {
		t.Fatal("expected error to propagate")
	}

	if got := testutil.ToFloat64(m.ActiveConnections.WithLabelValues(ListenerControl)); got != 0 {
		t.Errorf("active after connection = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.TotalConnections.WithLabelValues(ListenerControl, "error")); got != 1 {
		t.Errorf("error connections = %v, want 1", got)
	}
}

func TestCounters(t *testing.T) {
	m := New("test", prometheus.NewRegistry())

	m.ObserveControlRequest("CreateApplication", "ok", time.Millisecond)
	m.ObserveControlRequest("CreateApplication", "NameInUse", time.Millisecond)
	m.ObserveRequest("proxy", "502", time.Millisecond)
	m.ObserveBackend("blog", time.Millisecond, errors.New("refused"))
	m.ObserveBackend("blog", time.Millisecond, nil)
	m.SettingsSaved(nil)
	m.ConnectionOpened(ListenerHTTP)

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"control ok", m.ControlRequests.WithLabelValues("CreateApplication", "ok"), 1},
		{"control failure", m.ControlRequests.WithLabelValues("CreateApplication", "NameInUse"), 1},
		{"http", m.HTTPRequests.WithLabelValues("proxy", "502"), 1},
		{"backend errors", m.BackendErrors.WithLabelValues("blog"), 1},
		{"saves", m.SettingsSaves.WithLabelValues("success"), 1},
		{"http active", m.ActiveConnections.WithLabelValues(ListenerHTTP), 1},
	}
	for _, tt := range checks {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}

	m.ConnectionClosed(ListenerHTTP)
	if got := testutil.ToFloat64(m.ActiveConnections.WithLabelValues(ListenerHTTP)); got != 0 {
		t.Errorf("http active after close = %v, want 0", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	called := false
	if err := m.ObserveConnection(ListenerHTTP, func() error { called = true; return nil }); err != nil {
		t.Fatalf("ObserveConnection() error = %v", err)
	}
	if !called {
		t.Error("wrapped function not called")
	}
	m.ObserveControlRequest("GetApplications", "ok", 0)
	m.ObserveRequest("dashboard", "200", 0)
	m.ObserveBackend("blog", 0, nil)
	m.SettingsSaved(errors.New("disk full"))
	m.ConnectionOpened(ListenerControl)
	m.ConnectionClosed(ListenerControl)
}
