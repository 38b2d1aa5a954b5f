// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"net/netip"
	"strings"
	"unicode/utf8"

	"github.com/jensmeindertsma/sail/pkg/settings"
)

// Kind is the outcome of routing one request.
type Kind int

const (
	// BadRequest: the Host header is missing or not valid text.
	BadRequest Kind = iota
	// Dashboard: the request goes to the dashboard sub-application.
	Dashboard
	// Registry: the request goes to the registry sub-application.
	Registry
	// Proxy: the request is forwarded to an application backend.
	Proxy
	// Placeholder: the application exists but has no backend yet.
	Placeholder
	// UnknownHost: no route serves the requested host.
	UnknownHost
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case BadRequest:
		return "bad_request"
	case Dashboard:
		return "dashboard"
	case Registry:
		return "registry"
	case Proxy:
		return "proxy"
	case Placeholder:
		return "placeholder"
	case UnknownHost:
		return "unknown_host"
	default:
		return "unknown"
	}
}

// Decision says where a request goes. Application is set for Proxy and
// Placeholder, Address only for Proxy.
type Decision struct {
	Kind        Kind
	Application string
	Address     netip.AddrPort
}

// Decide routes a request for host against one snapshot of the settings.
// The dashboard and registry hostnames take precedence over applications,
// and the first application with a matching hostname wins. Hostnames
// compare case-insensitively.
func Decide(s settings.Settings, host string) Decision {
	if host == "" || !utf8.ValidString(host) {
		return Decision{Kind: BadRequest}
	}

	if strings.EqualFold(host, s.Dashboard.Hostname) {
		return Decision{Kind: Dashboard}
	}
	if strings.EqualFold(host, s.Registry.Hostname) {
		return Decision{Kind: Registry}
	}

	for _, app := range s.Applications {
		if !strings.EqualFold(host, app.Hostname) {
			continue
		}
		if app.Address == nil {
			return Decision{Kind: Placeholder, Application: app.Name}
		}
		return Decision{Kind: Proxy, Application: app.Name, Address: *app.Address}
	}

	return Decision{Kind: UnknownHost}
}
