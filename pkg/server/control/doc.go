// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

// Package control implements the accept loop of the daemon's control
// channel.
//
// # Connection Flow
//
//  1. Server accepts a connection from the attached socket
//  2. Server assigns a session ID and spawns a tracked goroutine
//  3. The goroutine calls parser.Parse in a loop, one request per call
//  4. The loop ends on EOF, a malformed record, or shutdown
//
// Requests on one connection are served strictly in order; separate
// connections are served concurrently.
//
// # Graceful Shutdown
//
// When the context is cancelled:
//
//  1. The listener is closed and a connection that raced the shutdown is
//     dropped unserved
//  2. Connections waiting for their next request are woken and closed
//  3. A request already being handled completes and is answered
//  4. Server waits for connections to finish, up to ShutdownTimeout
//  5. Returns ErrShutdownTimeout if the timeout was exceeded
//
// If the accept loop ends while the context is still live, Listen returns
// a fatal error so the daemon can stop.
//
// # Example
//
//	l, err := socket.Attach(os.LookupEnv, "/run/sail.socket")
//	if err != nil {
//		return err
//	}
//	cfg := control.Config{
//		Listener:        l,
//		ShutdownTimeout: 5 * time.Second,
//	}
//	server := control.New(cfg, jsonl.New(0), handler.NewControl(store))
//	if err := server.Listen(ctx); err != nil {
//		return err
//	}
package control
