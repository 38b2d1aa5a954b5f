// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"io"
	"testing"
)

func TestNewNil(t *testing.T) {
	if err := New(Transport, "read", "s1", nil); err != nil {
		t.Errorf("New(nil) = %v, want nil", err)
	}
	if err := Wrap(nil, "context"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"transport", NewTransport("read", "s1", io.ErrUnexpectedEOF), Transport},
		{"protocol", NewProtocol("decode", "s1", ErrProtocolViolation), Protocol},
		{"fatal", NewFatal("bind", io.EOF), Fatal},
		{"wrapped", Wrap(NewFatal("attach", io.EOF), "startup"), Fatal},
		{"plain", io.EOF, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrapAndMessage(t *testing.T) {
	err := NewProtocol("decode", "abc", ErrProtocolViolation)
	if !Is(err, ErrProtocolViolation) {
		t.Error("Is() = false, want true")
	}
	if got, want := err.Error(), "protocol decode [abc]: protocol violation"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !IsFatal(NewFatal("bind", io.EOF)) {
		t.Error("IsFatal() = false, want true")
	}
	if got, want := NewFatal("bind", io.EOF).Error(), "fatal bind: EOF"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
