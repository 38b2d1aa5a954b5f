// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jensmeindertsma/sail/pkg/settings"
)

// SuccessKind names a successful outcome.
type SuccessKind string

const (
	CreatedApplication  SuccessKind = "CreatedApplication"
	DeletedApplication  SuccessKind = "DeletedApplication"
	EditedApplication   SuccessKind = "EditedApplication"
	EditedDashboardHost SuccessKind = "EditedDashboardHost"
	EditedRegistryHost  SuccessKind = "EditedRegistryHost"
	GotApplication      SuccessKind = "GetApplication"
	GotApplications     SuccessKind = "GetApplications"
	GotDashboardHost    SuccessKind = "GetDashboardHost"
	GotRegistryHost     SuccessKind = "GetRegistryHost"
)

// Success is a successful outcome and its payload, if any.
type Success struct {
	Kind         SuccessKind
	Application  settings.Application
	Applications []settings.Application
	Hostname     string
}

// Failure is a domain-level rejection reported back to the client.
type Failure string

const (
	ApplicationNotFound Failure = "ApplicationNotFound"
	ConnectionClosed    Failure = "ConnectionClosed"
	HostnameInUse       Failure = "HostnameInUse"
	NameInUse           Failure = "NameInUse"
)

// Error implements error so clients can return failures directly.
func (f Failure) Error() string {
	return string(f)
}

func (f Failure) valid() bool {
	switch f {
	case ApplicationNotFound, ConnectionClosed, HostnameInUse, NameInUse:
		return true
	}
	return false
}

// Response carries exactly one of a Success or a Failure.
type Response struct {
	Ok  *Success
	Err Failure
}

// Reply answers the Message whose ID equals Regarding.
type Reply struct {
	Regarding uint8    `json:"regarding"`
	Response  Response `json:"response"`
}

// Ok wraps a successful outcome.
func Ok(s Success) Response {
	return Response{Ok: &s}
}

// Err wraps a failure.
func Err(f Failure) Response {
	return Response{Err: f}
}

// IsOk reports whether the response carries a success.
func (r Response) IsOk() bool {
	return r.Ok != nil
}

// Error returns the failure as an error, or nil on success.
func (r Response) Error() error {
	if r.Ok != nil {
		return nil
	}
	return r.Err
}

type hostnameBody struct {
	Hostname string `json:"hostname"`
}

func (k SuccessKind) unit() bool {
	switch k {
	case CreatedApplication, DeletedApplication, EditedApplication, EditedDashboardHost, EditedRegistryHost:
		return true
	}
	return false
}

// MarshalJSON implements json.Marshaler.
func (s Success) MarshalJSON() ([]byte, error) {
	if s.Kind.unit() {
		return json.Marshal(string(s.Kind))
	}

	var payload any
	switch s.Kind {
	case GotApplication:
		payload = s.Application
	case GotApplications:
		apps := s.Applications
		if apps == nil {
			apps = []settings.Application{}
		}
		payload = apps
	case GotDashboardHost, GotRegistryHost:
		payload = hostnameBody{Hostname: s.Hostname}
	default:
		return nil, fmt.Errorf("unknown success kind %q", s.Kind)
	}
	return json.Marshal(map[SuccessKind]any{s.Kind: payload})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Success) UnmarshalJSON(data []byte) error {
	tag, body, err := splitTagged(data)
	if err != nil {
		return fmt.Errorf("success: %w", err)
	}

	kind := SuccessKind(tag)
	if kind.unit() {
		*s = Success{Kind: kind}
		return nil
	}
	if body == nil {
		return fmt.Errorf("success: %s requires a payload", kind)
	}

	out := Success{Kind: kind}
	switch kind {
	case GotApplication:
		err = json.Unmarshal(body, &out.Application)
	case GotApplications:
		err = json.Unmarshal(body, &out.Applications)
	case GotDashboardHost, GotRegistryHost:
		var h hostnameBody
		err = json.Unmarshal(body, &h)
		out.Hostname = h.Hostname
	default:
		return fmt.Errorf("success: unknown kind %q", tag)
	}
	if err != nil {
		return fmt.Errorf("success: %s: %w", kind, err)
	}

	*s = out
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Ok != nil {
		return json.Marshal(map[string]any{"Ok": r.Ok})
	}
	if !r.Err.valid() {
		return nil, fmt.Errorf("unknown failure %q", r.Err)
	}
	return json.Marshal(map[string]Failure{"Err": r.Err})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Response) UnmarshalJSON(data []byte) error {
	tag, body, err := splitTagged(data)
	if err != nil {
		return fmt.Errorf("response: %w", err)
	}
	if body == nil {
		return fmt.Errorf("response: %q carries no value", tag)
	}

	switch tag {
	case "Ok":
		var s Success
		if err := json.Unmarshal(body, &s); err != nil {
			return err
		}
		*r = Response{Ok: &s}
	case "Err":
		var f Failure
		if err := json.Unmarshal(body, &f); err != nil {
			return fmt.Errorf("response: %w", err)
		}
		if !f.valid() {
			return fmt.Errorf("response: unknown failure %q", f)
		}
		*r = Response{Err: f}
	default:
		return fmt.Errorf("response: unknown variant %q", tag)
	}
	return nil
}

var errMissingField = errors.New("missing field")

// UnmarshalJSON implements json.Unmarshaler. Both fields are required.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      *uint8          `json:"id"`
		Request json.RawMessage `json:"request"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.ID == nil {
		return fmt.Errorf("message: %w id", errMissingField)
	}
	if raw.Request == nil || bytes.Equal(raw.Request, []byte("null")) {
		return fmt.Errorf("message: %w request", errMissingField)
	}
	var req Request
	if err := json.Unmarshal(raw.Request, &req); err != nil {
		return err
	}
	*m = Message{ID: *raw.ID, Request: req}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. Both fields are required.
func (r *Reply) UnmarshalJSON(data []byte) error {
	var raw struct {
		Regarding *uint8          `json:"regarding"`
		Response  json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Regarding == nil {
		return fmt.Errorf("reply: %w regarding", errMissingField)
	}
	if raw.Response == nil {
		return fmt.Errorf("reply: %w response", errMissingField)
	}
	var resp Response
	if err := json.Unmarshal(raw.Response, &resp); err != nil {
		return err
	}
	*r = Reply{Regarding: *raw.Regarding, Response: resp}
	return nil
}
