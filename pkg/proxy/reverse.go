// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/netip"
	"net/url"
	"time"

	sailerrors "github.com/jensmeindertsma/sail/pkg/errors"
	"github.com/jensmeindertsma/sail/pkg/metrics"
)

// BadGatewayBody is written when a backend cannot be reached.
const BadGatewayBody = "502 Bad Gateway (proxy error)"

// ReverseProxyConfig configures backend forwarding.
type ReverseProxyConfig struct {
	// DialTimeout bounds connecting to a backend.
	DialTimeout time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// ReverseProxy forwards requests to application backends.
type ReverseProxy struct {
	transport *http.Transport
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewReverseProxy creates a forwarder. Every request opens its own backend
// connection.
func NewReverseProxy(cfg ReverseProxyConfig) *ReverseProxy {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	return &ReverseProxy{
		transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: cfg.DialTimeout,
			}).DialContext,
			DisableKeepAlives:  true,
			DisableCompression: true,
		},
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Forward relays r to the backend at addr and streams the response to w.
func (p *ReverseProxy) Forward(w http.ResponseWriter, r *http.Request, application string, addr netip.AddrPort) {
	start := time.Now()
	target := &url.URL{Scheme: "http", Host: addr.String()}

	var failure error
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Host = pr.In.Host
			pr.SetXForwarded()
		},
		Transport:     p.transport,
		FlushInterval: -1,
		ErrorLog:      slog.NewLogLogger(p.logger.Handler(), slog.LevelWarn),
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			failure = sailerrors.NewTransport("forward", "",
				fmt.Errorf("%w: %w", sailerrors.ErrBackendUnavailable, err))
			p.logger.Warn("backend request failed",
				slog.String("application", application),
				slog.String("backend", addr.String()),
				slog.String("error", failure.Error()))
			http.Error(w, BadGatewayBody, http.StatusBadGateway)
		},
	}

	rp.ServeHTTP(w, r)

	p.metrics.ObserveBackend(application, time.Since(start), failure)
}
