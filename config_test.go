// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package sail

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig(env.Options{Prefix: EnvPrefix, Environment: map[string]string{}})
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}

	if cfg.SettingsFile != "/etc/sail/configuration.yaml" {
		t.Errorf("SettingsFile = %q", cfg.SettingsFile)
	}
	if cfg.HTTPHost != "127.0.0.1" {
		t.Errorf("HTTPHost = %q", cfg.HTTPHost)
	}
	if cfg.GracePeriod != 5*time.Second {
		t.Errorf("GracePeriod = %s, want 5s", cfg.GracePeriod)
	}
	if cfg.ControlSocket != "" {
		t.Errorf("ControlSocket = %q, want empty", cfg.ControlSocket)
	}
}

func TestNewConfigOverrides(t *testing.T) {
	environment := map[string]string{
		"SAIL_SETTINGS_FILE":       "/tmp/sail.yaml",
		"SAIL_GRACE_PERIOD":        "250ms",
		"SAIL_CONTROL_SOCKET":      "/tmp/sail.socket",
		"SAIL_ON_CORRUPT_SETTINGS": "reset",
		"SAIL_METRICS_PORT":        "9100",
	}

	cfg, err := NewConfig(env.Options{Prefix: EnvPrefix, Environment: environment})
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}

	if cfg.SettingsFile != "/tmp/sail.yaml" {
		t.Errorf("SettingsFile = %q", cfg.SettingsFile)
	}
	if cfg.GracePeriod != 250*time.Millisecond {
		t.Errorf("GracePeriod = %s", cfg.GracePeriod)
	}
	if cfg.ControlSocket != "/tmp/sail.socket" {
		t.Errorf("ControlSocket = %q", cfg.ControlSocket)
	}
	if cfg.OnCorruptSettings != "reset" {
		t.Errorf("OnCorruptSettings = %q", cfg.OnCorruptSettings)
	}
	if cfg.MetricsPort != 9100 {
		t.Errorf("MetricsPort = %d", cfg.MetricsPort)
	}
}

func TestNewConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad policy", map[string]string{"SAIL_ON_CORRUPT_SETTINGS": "ignore"}},
		{"zero grace", map[string]string{"SAIL_GRACE_PERIOD": "0s"}},
		{"bad duration", map[string]string{"SAIL_GRACE_PERIOD": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewConfig(env.Options{Prefix: EnvPrefix, Environment: tt.env}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
