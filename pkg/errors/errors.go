// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

// Package errors classifies the failures that can happen inside the daemon.
//
// Domain rejections (a name already in use, an unknown application) are not
// errors at all: they travel back to the client as protocol failures. What
// remains falls into three kinds. Transport errors end one connection,
// protocol errors mean a peer sent something unparseable, and fatal errors
// take the whole daemon down.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how far its effects reach.
type Kind int

const (
	// Unknown is the kind of errors that were never classified.
	Unknown Kind = iota

	// Transport errors affect a single connection: resets, short reads,
	// backend dial failures.
	Transport

	// Protocol errors come from malformed peer input. The offending
	// connection is closed.
	Protocol

	// Fatal errors stop the daemon: a listener that cannot be bound or
	// attached, or an accept loop that exits on its own.
	Fatal
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case Transport:
		return "transport"
	case Protocol:
		return "protocol"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Common error types
var (
	// ErrProtocolViolation indicates a record that could not be decoded.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrBackendUnavailable indicates the proxied backend could not be reached.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrSizeLimitExceeded indicates a record larger than allowed.
	ErrSizeLimitExceeded = errors.New("size limit exceeded")
)

// Error wraps an error with its kind and the operation that failed.
type Error struct {
	Kind      Kind   // How far the failure reaches
	Op        string // Operation that failed
	SessionID string // Connection identifier, if any
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s %s [%s]: %v", e.Kind, e.Op, e.SessionID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error. It returns nil when err is nil.
func New(kind Kind, op, sessionID string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:      kind,
		Op:        op,
		SessionID: sessionID,
		Err:       err,
	}
}

// NewTransport classifies err as a transport error.
func NewTransport(op, sessionID string, err error) error {
	return New(Transport, op, sessionID, err)
}

// NewProtocol classifies err as a protocol error.
func NewProtocol(op, sessionID string, err error) error {
	return New(Protocol, op, sessionID, err)
}

// NewFatal classifies err as fatal to the daemon.
func NewFatal(op string, err error) error {
	return New(Fatal, op, "", err)
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsFatal reports whether err must stop the daemon.
func IsFatal(err error) bool {
	return KindOf(err) == Fatal
}

// Wrap wraps an error with context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is and As re-export the standard helpers so callers need one import.
var (
	Is = errors.Is
	As = errors.As
)
