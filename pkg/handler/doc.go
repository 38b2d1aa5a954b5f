// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

// Package handler links the control channel to the settings it manages.
//
// # Data Flow
//
//	Client → Parser (decodes one record) → Handler (applies it) → Parser (encodes reply) → Client
//
// A Handler receives one decoded request at a time, together with a
// Context describing the connection it arrived on, and returns the
// response to send back. Domain rejections such as a duplicate name are
// ordinary responses; a returned error means the request could not be
// handled at all and the connection is closed.
//
// # Implementations
//
//   - Control: applies requests to a settings.Store
//   - Logging: logs every request and its outcome, then delegates
//   - Instrumented: records Prometheus metrics, then delegates
//
// Decorators compose:
//
//	h := handler.NewInstrumented(
//		handler.NewLogging(handler.NewControl(store), logger),
//		m,
//	)
package handler
