// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

const (
	// DefaultServerPort is the public HTTP port used when none is configured.
	DefaultServerPort uint16 = 4250

	// DefaultDashboardHostname routes to the built-in dashboard.
	DefaultDashboardHostname = "sail.jensmeindertsma.com"

	// DefaultRegistryHostname routes to the built-in registry.
	DefaultRegistryHostname = "registry.jensmeindertsma.com"
)

// Application is a named app reachable under a hostname. Address stays nil
// until the app has a running backend to forward to.
type Application struct {
	Name     string          `yaml:"name"              json:"name"`
	Hostname string          `yaml:"hostname"          json:"hostname"`
	Address  *netip.AddrPort `yaml:"address,omitempty" json:"address"`
}

// DashboardSettings configures the dashboard sub-application.
type DashboardSettings struct {
	Hostname string `yaml:"hostname" json:"hostname"`
}

// RegistrySettings configures the registry sub-application.
type RegistrySettings struct {
	Hostname string `yaml:"hostname" json:"hostname"`
}

// Settings is the complete persisted daemon state.
type Settings struct {
	Applications []Application     `yaml:"applications"`
	ServerPort   uint16            `yaml:"server_port"`
	Dashboard    DashboardSettings `yaml:"dashboard"`
	Registry     RegistrySettings  `yaml:"registry"`
}

// Default returns the settings used when no file exists yet.
func Default() Settings {
	return Settings{
		Applications: []Application{},
		ServerPort:   DefaultServerPort,
		Dashboard:    DashboardSettings{Hostname: DefaultDashboardHostname},
		Registry:     RegistrySettings{Hostname: DefaultRegistryHostname},
	}
}

// Clone returns a deep copy of the application.
func (a Application) Clone() Application {
	if a.Address != nil {
		addr := *a.Address
		a.Address = &addr
	}
	return a
}

// Clone returns a deep copy of s. Mutating the copy never affects s.
func (s Settings) Clone() Settings {
	apps := make([]Application, len(s.Applications))
	for i, app := range s.Applications {
		apps[i] = app.Clone()
	}
	s.Applications = apps
	return s
}

// Find returns the index of the application called name, or -1.
func (s Settings) Find(name string) int {
	return slices.IndexFunc(s.Applications, func(a Application) bool {
		return a.Name == name
	})
}

// FindHostname returns the index of the first application served under
// hostname, or -1. Hostnames compare case-insensitively, as in routing.
func (s Settings) FindHostname(hostname string) int {
	return slices.IndexFunc(s.Applications, func(a Application) bool {
		return strings.EqualFold(a.Hostname, hostname)
	})
}

// ErrNoServerPort is returned by Validate when server_port is zero.
var ErrNoServerPort = errors.New("server_port must not be 0")

// Validate reports settings the daemon cannot run with: a zero server port
// or two applications sharing a name. Any string is a valid name, the
// empty one included, so that whatever the control channel accepts also
// loads again.
func (s Settings) Validate() error {
	if s.ServerPort == 0 {
		return ErrNoServerPort
	}
	seen := make(map[string]struct{}, len(s.Applications))
	for _, app := range s.Applications {
		if _, ok := seen[app.Name]; ok {
			return fmt.Errorf("duplicate application name %q", app.Name)
		}
		seen[app.Name] = struct{}{}
	}
	return nil
}
