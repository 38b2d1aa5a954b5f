// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RequestKind names a control request variant.
type RequestKind string

const (
	CreateApplication RequestKind = "CreateApplication"
	GetApplication    RequestKind = "GetApplication"
	GetApplications   RequestKind = "GetApplications"
	EditApplication   RequestKind = "EditApplication"
	DeleteApplication RequestKind = "DeleteApplication"
	GetDashboardHost  RequestKind = "GetDashboardHost"
	EditDashboardHost RequestKind = "EditDashboardHost"
	GetRegistryHost   RequestKind = "GetRegistryHost"
	EditRegistryHost  RequestKind = "EditRegistryHost"
)

// Request is one control operation. Only the fields belonging to Kind are
// meaningful:
//
//	CreateApplication  Name, Hostname
//	GetApplication     Name
//	EditApplication    Name, NewName, NewHostname
//	DeleteApplication  Name
//	EditDashboardHost  Hostname
//	EditRegistryHost   Hostname
type Request struct {
	Kind        RequestKind
	Name        string
	Hostname    string
	NewName     *string
	NewHostname *string
}

// Message is a request tagged with a client-chosen correlation ID.
type Message struct {
	ID      uint8   `json:"id"`
	Request Request `json:"request"`
}

type namePayload struct {
	Name *string `json:"name"`
}

type hostnamePayload struct {
	Hostname *string `json:"hostname"`
}

type createPayload struct {
	Name     *string `json:"name"`
	Hostname *string `json:"hostname"`
}

type editPayload struct {
	Name        *string `json:"name"`
	NewName     *string `json:"new_name"`
	NewHostname *string `json:"new_hostname"`
}

func (k RequestKind) unit() bool {
	switch k {
	case GetApplications, GetDashboardHost, GetRegistryHost:
		return true
	}
	return false
}

func (k RequestKind) valid() bool {
	switch k {
	case CreateApplication, GetApplication, GetApplications, EditApplication,
		DeleteApplication, GetDashboardHost, EditDashboardHost, GetRegistryHost, EditRegistryHost:
		return true
	}
	return false
}

// MarshalJSON implements json.Marshaler.
func (r Request) MarshalJSON() ([]byte, error) {
	if !r.Kind.valid() {
		return nil, fmt.Errorf("unknown request kind %q", r.Kind)
	}
	if r.Kind.unit() {
		return json.Marshal(string(r.Kind))
	}

	var payload any
	switch r.Kind {
	case CreateApplication:
		payload = createPayload{Name: &r.Name, Hostname: &r.Hostname}
	case GetApplication, DeleteApplication:
		payload = namePayload{Name: &r.Name}
	case EditApplication:
		payload = editPayload{Name: &r.Name, NewName: r.NewName, NewHostname: r.NewHostname}
	case EditDashboardHost, EditRegistryHost:
		payload = hostnamePayload{Hostname: &r.Hostname}
	}
	return json.Marshal(map[RequestKind]any{r.Kind: payload})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Request) UnmarshalJSON(data []byte) error {
	tag, body, err := splitTagged(data)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}

	kind := RequestKind(tag)
	if !kind.valid() {
		return fmt.Errorf("request: unknown kind %q", tag)
	}
	if kind.unit() {
		if body != nil && !bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
			return fmt.Errorf("request: %s takes no fields", kind)
		}
		*r = Request{Kind: kind}
		return nil
	}
	if body == nil {
		return fmt.Errorf("request: %s requires fields", kind)
	}

	out := Request{Kind: kind}
	switch kind {
	case CreateApplication:
		var p createPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return fmt.Errorf("request: %s: %w", kind, err)
		}
		if p.Name == nil || p.Hostname == nil {
			return fmt.Errorf("request: %s: missing name or hostname", kind)
		}
		out.Name, out.Hostname = *p.Name, *p.Hostname
	case GetApplication, DeleteApplication:
		var p namePayload
		if err := json.Unmarshal(body, &p); err != nil {
			return fmt.Errorf("request: %s: %w", kind, err)
		}
		if p.Name == nil {
			return fmt.Errorf("request: %s: missing name", kind)
		}
		out.Name = *p.Name
	case EditApplication:
		var p editPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return fmt.Errorf("request: %s: %w", kind, err)
		}
		if p.Name == nil {
			return fmt.Errorf("request: %s: missing name", kind)
		}
		out.Name, out.NewName, out.NewHostname = *p.Name, p.NewName, p.NewHostname
	case EditDashboardHost, EditRegistryHost:
		var p hostnamePayload
		if err := json.Unmarshal(body, &p); err != nil {
			return fmt.Errorf("request: %s: %w", kind, err)
		}
		if p.Hostname == nil {
			return fmt.Errorf("request: %s: missing hostname", kind)
		}
		out.Hostname = *p.Hostname
	}

	*r = out
	return nil
}

// splitTagged decodes an externally tagged value. A bare string yields the
// tag and a nil body; a single-key object yields the key and its value.
func splitTagged(data []byte) (string, json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return "", nil, err
		}
		return tag, nil, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", nil, err
	}
	if len(obj) != 1 {
		return "", nil, fmt.Errorf("expected exactly one variant, got %d", len(obj))
	}
	for tag, body := range obj {
		return tag, body, nil
	}
	return "", nil, nil
}
