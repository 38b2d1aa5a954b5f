// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"

	"github.com/jensmeindertsma/sail/pkg/protocol"
)

// Context contains metadata about the connection a request arrived on.
type Context struct {
	// SessionID is a unique identifier for this connection
	SessionID string

	// RemoteAddr is the peer address, if the transport has one
	RemoteAddr string

	// Protocol names the transport (unix, tcp)
	Protocol string
}

// Handler applies control requests.
type Handler interface {
	// Handle applies req and returns the response for the client.
	// Returning an error closes the connection without a reply.
	Handle(ctx context.Context, hctx *Context, req protocol.Request) (protocol.Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, hctx *Context, req protocol.Request) (protocol.Response, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, hctx *Context, req protocol.Request) (protocol.Response, error) {
	return f(ctx, hctx, req)
}

// Outcome names a response for logs and metrics: "ok" or the failure kind.
func Outcome(resp protocol.Response) string {
	if resp.IsOk() {
		return "ok"
	}
	return string(resp.Err)
}
