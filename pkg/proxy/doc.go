// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

// Package proxy serves the public HTTP listener and relays application
// traffic to backends.
//
// # Architecture
//
//	Client
//	   ↓
//	┌────────────┐
//	│ HTTPServer │  (accepts, drains on shutdown)
//	└────────────┘
//	   ↓
//	┌────────────┐
//	│   Router   │  (chooses by Host header)
//	└────────────┘
//	   ↓
//	┌──────────────┐
//	│ ReverseProxy │  (one fresh backend connection per request)
//	└──────────────┘
//	   ↓
//	Backend
//
// # Reverse Proxy
//
// Requests and responses stream in both directions without buffering whole
// bodies. The Host header the client sent is preserved and X-Forwarded-*
// headers are added. Connection upgrades such as WebSocket pass through.
// Backend connections are never pooled. Any failure to reach the backend
// or read its response headers is answered with 502.
//
// # Graceful Shutdown
//
// When the context passed to HTTPServer.Listen is cancelled the listener
// closes, idle keep-alive connections are dropped and in-flight requests
// may finish within ShutdownTimeout. A connection accepted in the same
// instant as the shutdown is closed unserved.
//
// # Example
//
//	rp := proxy.NewReverseProxy(proxy.ReverseProxyConfig{DialTimeout: 10 * time.Second})
//	rt := router.New(router.Config{Store: store, Forwarder: rp})
//	srv := proxy.NewHTTP(proxy.HTTPConfig{
//		Host:    "127.0.0.1",
//		Port:    store.Get().ServerPort,
//		Handler: rt,
//	})
//	if err := srv.Listen(ctx); err != nil {
//		return err
//	}
package proxy
