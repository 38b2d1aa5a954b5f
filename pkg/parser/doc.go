// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

// Package parser defines how a control connection turns bytes into handled
// requests.
//
// # Parser Interface
//
// The Parser interface has a single method:
//
//	Parse(ctx context.Context, r *bufio.Reader, w io.Writer, h handler.Handler, hctx *handler.Context) error
//
// Servers call it in a loop for the lifetime of a connection. Each call
// performs one cycle:
//
//  1. Read exactly one record from r
//  2. Decode it into a request
//  3. Pass the request to the handler
//  4. Encode the response and write exactly one record to w
//
// Records on one connection are therefore handled strictly in order.
//
// # Errors
//
//   - nil: the cycle completed, call Parse again
//   - io.EOF: the peer closed the connection cleanly
//   - ErrClosing: shutdown began and the peer was told so
//   - anything else: close the connection
//
// # Implementations
//
//   - jsonl: newline-delimited JSON records (package parser/jsonl)
package parser
