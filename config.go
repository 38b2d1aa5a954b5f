// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package sail

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is the prefix shared by every daemon environment variable.
const EnvPrefix = "SAIL_"

// Config holds the runtime configuration of the daemon. Application routing
// lives in the settings file; this only covers how the process itself runs.
type Config struct {
	SettingsFile      string        `env:"SETTINGS_FILE"       envDefault:"/etc/sail/configuration.yaml"`
	OnCorruptSettings string        `env:"ON_CORRUPT_SETTINGS" envDefault:"fail"`
	ControlSocket     string        `env:"CONTROL_SOCKET"      envDefault:""`
	HTTPHost          string        `env:"HTTP_HOST"           envDefault:"127.0.0.1"`
	GracePeriod       time.Duration `env:"GRACE_PERIOD"        envDefault:"5s"`
	ProxyDialTimeout  time.Duration `env:"PROXY_DIAL_TIMEOUT"  envDefault:"10s"`
	MetricsPort       int           `env:"METRICS_PORT"        envDefault:"0"`
	HealthPort        int           `env:"HEALTH_PORT"         envDefault:"0"`
	LogLevel          string        `env:"LOG_LEVEL"           envDefault:"info"`
	LogFormat         string        `env:"LOG_FORMAT"          envDefault:"text"`
}

// NewConfig parses the daemon configuration from the environment.
func NewConfig(opts env.Options) (Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration values that cannot be acted on.
func (c Config) Validate() error {
	switch c.OnCorruptSettings {
	case "fail", "reset":
	default:
		return fmt.Errorf("invalid ON_CORRUPT_SETTINGS %q: want fail or reset", c.OnCorruptSettings)
	}
	if c.GracePeriod <= 0 {
		return fmt.Errorf("invalid GRACE_PERIOD %s: must be positive", c.GracePeriod)
	}
	if c.SettingsFile == "" {
		return fmt.Errorf("SETTINGS_FILE must not be empty")
	}
	return nil
}
