// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

// Package socket obtains the control channel listener, either from the
// service manager (socket activation) or by binding a unix socket path.
package socket

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
)

// ListenFDsStart is the first file descriptor passed by the service manager.
const ListenFDsStart = 3

var (
	// ErrNotActivated is returned when LISTEN_FDS is not set.
	ErrNotActivated = errors.New("process was not socket activated")

	// ErrWrongProcess is returned when LISTEN_PID names another process.
	ErrWrongProcess = errors.New("passed sockets belong to another process")
)

// CountError reports a LISTEN_FDS value other than exactly one.
type CountError struct {
	Count int
}

func (e *CountError) Error() string {
	return fmt.Sprintf("expected exactly 1 passed socket, got %d", e.Count)
}

// LookupFunc reads an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Count validates the activation environment and returns the number of
// passed sockets, which is always 1 when err is nil.
func Count(lookup LookupFunc) (int, error) {
	raw, ok := lookup("LISTEN_FDS")
	if !ok {
		return 0, ErrNotActivated
	}

	if pid, ok := lookup("LISTEN_PID"); ok {
		n, err := strconv.Atoi(pid)
		if err != nil {
			return 0, fmt.Errorf("invalid LISTEN_PID %q: %w", pid, err)
		}
		if n != os.Getpid() {
			return 0, ErrWrongProcess
		}
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid LISTEN_FDS %q: %w", raw, err)
	}
	if n != 1 {
		return 0, &CountError{Count: n}
	}
	return n, nil
}

// Activated adopts the single socket passed by the service manager.
func Activated(lookup LookupFunc) (net.Listener, error) {
	if _, err := Count(lookup); err != nil {
		return nil, err
	}

	f := os.NewFile(uintptr(ListenFDsStart), "LISTEN_FD_3")
	if f == nil {
		return nil, fmt.Errorf("file descriptor %d is not valid", ListenFDsStart)
	}
	defer f.Close()

	l, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("failed to adopt passed socket: %w", err)
	}

	// Children must not inherit the activation.
	os.Unsetenv("LISTEN_FDS")
	os.Unsetenv("LISTEN_PID")
	os.Unsetenv("LISTEN_FDNAMES")

	return l, nil
}

// Listen binds a unix socket at path, replacing a stale socket file left by
// a previous run. Only the owner may connect.
func Listen(path string) (net.Listener, error) {
	if info, err := os.Lstat(path); err == nil {
		if info.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("%s exists and is not a socket", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to restrict socket permissions: %w", err)
	}
	return l, nil
}

// Attach prefers a passed socket and falls back to binding fallback when the
// process was not activated. An empty fallback makes activation mandatory.
func Attach(lookup LookupFunc, fallback string) (net.Listener, error) {
	l, err := Activated(lookup)
	if errors.Is(err, ErrNotActivated) && fallback != "" {
		return Listen(fallback)
	}
	return l, err
}
