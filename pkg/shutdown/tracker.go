// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package shutdown

import (
	"context"
	"io"
	"net"
	"sync"
	"time"
)

// Tracker counts in-flight connection goroutines.
type Tracker struct {
	wg sync.WaitGroup
}

// Go runs fn in a tracked goroutine.
func (t *Tracker) Go(fn func()) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn()
	}()
}

// Drain waits for tracked goroutines to finish. It returns ErrDrainTimeout
// if some are still running after timeout; they are not interrupted.
func (t *Tracker) Drain(timeout time.Duration) error {
	return Wait(timeout, func() error {
		t.wg.Wait()
		return nil
	})
}

// Listener wraps a net.Listener so that a connection accepted after done
// closed is dropped instead of handed out. Once done is closed Accept
// always fails with net.ErrClosed.
type Listener struct {
	net.Listener
	done <-chan struct{}
}

// Gate returns l gated on done.
func Gate(l net.Listener, done <-chan struct{}) *Listener {
	return &Listener{Listener: l, done: done}
}

// Accept implements net.Listener.
func (l *Listener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()

	select {
	case <-l.done:
		if conn != nil {
			conn.Close()
		}
		return nil, net.ErrClosed
	default:
	}

	return conn, err
}

// CloseOnDone closes c once ctx is done, unblocking anything waiting on it.
// The returned function releases the watcher without closing c.
func CloseOnDone(ctx context.Context, c io.Closer) (release func()) {
	quit := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-quit:
		}
	}()
	return func() {
		once.Do(func() { close(quit) })
	}
}
