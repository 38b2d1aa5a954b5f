// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/jensmeindertsma/sail/pkg/handler"
)

// ErrClosing is returned by Parse when a request arrived after shutdown
// began. The request was answered with a ConnectionClosed failure and the
// connection should be closed.
var ErrClosing = errors.New("connection closing for shutdown")

// Parser reads one request, dispatches it and writes one reply.
type Parser interface {
	// Parse performs one request/reply cycle. ctx is cancelled once the
	// daemon starts shutting down; requests decoded after that point are
	// refused instead of dispatched.
	Parse(ctx context.Context, r *bufio.Reader, w io.Writer, h handler.Handler, hctx *handler.Context) error
}
