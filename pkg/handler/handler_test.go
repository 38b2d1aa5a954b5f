// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/jensmeindertsma/sail/pkg/metrics"
	"github.com/jensmeindertsma/sail/pkg/protocol"
	"github.com/jensmeindertsma/sail/pkg/settings"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func ptr(s string) *string { return &s }

var hctx = &Context{SessionID: "test-session", Protocol: "unix"}

func newStore(t *testing.T, apps ...settings.Application) *settings.Store {
	t.Helper()
	initial := settings.Default()
	initial.Applications = apps
	return settings.New(filepath.Join(t.TempDir(), "configuration.yaml"), initial,
		settings.WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
}

func handle(t *testing.T, h Handler, req protocol.Request) protocol.Response {
	t.Helper()
	resp, err := h.Handle(context.Background(), hctx, req)
	if err != nil {
		t.Fatalf("Handle(%s) error = %v", req.Kind, err)
	}
	return resp
}

func TestControlApplications(t *testing.T) {
	store := newStore(t)
	h := NewControl(store)

	tests := []struct {
		name string
		req  protocol.Request
		want protocol.Response
	}{
		{
			name: "create",
			req:  protocol.Request{Kind: protocol.CreateApplication, Name: "blog", Hostname: "blog.example"},
			want: protocol.Ok(protocol.Success{Kind: protocol.CreatedApplication}),
		},
		{
			name: "duplicate name",
			req:  protocol.Request{Kind: protocol.CreateApplication, Name: "blog", Hostname: "other.example"},
			want: protocol.Err(protocol.NameInUse),
		},
		{
			name: "duplicate hostname",
			req:  protocol.Request{Kind: protocol.CreateApplication, Name: "other", Hostname: "blog.example"},
			want: protocol.Err(protocol.HostnameInUse),
		},
		{
			name: "duplicate hostname in other case",
			req:  protocol.Request{Kind: protocol.CreateApplication, Name: "shadow", Hostname: "BLOG.Example"},
			want: protocol.Err(protocol.HostnameInUse),
		},
		{
			name: "get created",
			req:  protocol.Request{Kind: protocol.GetApplication, Name: "blog"},
			want: protocol.Ok(protocol.Success{
				Kind:        protocol.GotApplication,
				Application: settings.Application{Name: "blog", Hostname: "blog.example"},
			}),
		},
		{
			name: "get missing",
			req:  protocol.Request{Kind: protocol.GetApplication, Name: "x"},
			want: protocol.Err(protocol.ApplicationNotFound),
		},
		{
			name: "edit hostname",
			req:  protocol.Request{Kind: protocol.EditApplication, Name: "blog", NewHostname: ptr("journal.example")},
			want: protocol.Ok(protocol.Success{Kind: protocol.EditedApplication}),
		},
		{
			name: "edit missing",
			req:  protocol.Request{Kind: protocol.EditApplication, Name: "x", NewName: ptr("y")},
			want: protocol.Err(protocol.ApplicationNotFound),
		},
		{
			name: "delete",
			req:  protocol.Request{Kind: protocol.DeleteApplication, Name: "blog"},
			want: protocol.Ok(protocol.Success{Kind: protocol.DeletedApplication}),
		},
		{
			name: "delete missing",
			req:  protocol.Request{Kind: protocol.DeleteApplication, Name: "blog"},
			want: protocol.Ok(protocol.Success{Kind: protocol.DeletedApplication}),
		},
		{
			name: "list empty",
			req:  protocol.Request{Kind: protocol.GetApplications},
			want: protocol.Ok(protocol.Success{Kind: protocol.GotApplications, Applications: []settings.Application{}}),
		},
	}

	// Steps build on each other.
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := handle(t, h, tt.req)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Handle() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEditKeepsUntouchedFields(t *testing.T) {
	addr := netip.MustParseAddrPort("127.0.0.1:3000")
	store := newStore(t,
		settings.Application{Name: "blog", Hostname: "blog.example", Address: &addr},
		settings.Application{Name: "wiki", Hostname: "wiki.example"},
	)
	h := NewControl(store)

	resp := handle(t, h, protocol.Request{Kind: protocol.EditApplication, Name: "blog", NewName: ptr("journal")})
	if !resp.IsOk() {
		t.Fatalf("edit failed: %v", resp.Err)
	}

	apps := store.Get().Applications
	want := settings.Application{Name: "journal", Hostname: "blog.example", Address: &addr}
	if !reflect.DeepEqual(apps[0], want) {
		t.Errorf("edited = %+v, want %+v", apps[0], want)
	}
	if apps[1].Name != "wiki" || apps[1].Hostname != "wiki.example" {
		t.Errorf("other application changed: %+v", apps[1])
	}
}

func TestEditConflicts(t *testing.T) {
	store := newStore(t,
		settings.Application{Name: "blog", Hostname: "blog.example"},
		settings.Application{Name: "wiki", Hostname: "wiki.example"},
	)
	h := NewControl(store)

	if got := handle(t, h, protocol.Request{Kind: protocol.EditApplication, Name: "blog", NewName: ptr("wiki")}); got.Err != protocol.NameInUse {
		t.Errorf("rename onto existing = %+v, want NameInUse", got)
	}
	if got := handle(t, h, protocol.Request{Kind: protocol.EditApplication, Name: "blog", NewHostname: ptr("wiki.example")}); got.Err != protocol.HostnameInUse {
		t.Errorf("hostname onto existing = %+v, want HostnameInUse", got)
	}
	if got := handle(t, h, protocol.Request{Kind: protocol.EditApplication, Name: "blog", NewHostname: ptr("WIKI.example")}); got.Err != protocol.HostnameInUse {
		t.Errorf("hostname onto existing in other case = %+v, want HostnameInUse", got)
	}
	// Keeping one's own name and hostname is not a conflict.
	if got := handle(t, h, protocol.Request{Kind: protocol.EditApplication, Name: "blog", NewName: ptr("blog"), NewHostname: ptr("blog.example")}); !got.IsOk() {
		t.Errorf("self edit = %+v, want ok", got)
	}
}

func TestChangesSurviveReload(t *testing.T) {
	store := newStore(t)
	h := NewControl(store)

	steps := []protocol.Request{
		{Kind: protocol.CreateApplication, Name: "blog", Hostname: "blog.example"},
		{Kind: protocol.CreateApplication, Name: "", Hostname: "x.example"},
		{Kind: protocol.EditApplication, Name: "blog", NewName: ptr("journal"), NewHostname: ptr("journal.example")},
		{Kind: protocol.EditApplication, Name: "journal", NewName: ptr("")},
		{Kind: protocol.EditDashboardHost, Hostname: "dash.example"},
	}
	for _, req := range steps {
		resp := handle(t, h, req)
		if req.Kind == protocol.EditApplication && req.Name == "journal" {
			// Renaming onto the empty name collides with the second app.
			if resp.Err != protocol.NameInUse {
				t.Fatalf("%s = %+v, want NameInUse", req.Kind, resp)
			}
			continue
		}
		if !resp.IsOk() {
			t.Fatalf("%s = %+v, want ok", req.Kind, resp)
		}
	}

	reloaded, err := settings.Load(store.Path(), settings.FailOnCorrupt,
		settings.WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, want := reloaded.Get(), store.Get(); !reflect.DeepEqual(got, want) {
		t.Errorf("reloaded = %+v, want %+v", got, want)
	}
}

func TestDashboardAndRegistryHosts(t *testing.T) {
	store := newStore(t)
	h := NewControl(store)

	got := handle(t, h, protocol.Request{Kind: protocol.GetDashboardHost})
	if got.Ok == nil || got.Ok.Hostname != settings.DefaultDashboardHostname {
		t.Fatalf("GetDashboardHost = %+v", got)
	}

	handle(t, h, protocol.Request{Kind: protocol.EditDashboardHost, Hostname: "dash.example"})
	handle(t, h, protocol.Request{Kind: protocol.EditRegistryHost, Hostname: "reg.example"})

	current := store.Get()
	if current.Dashboard.Hostname != "dash.example" || current.Registry.Hostname != "reg.example" {
		t.Errorf("settings = %+v", current)
	}
	got = handle(t, h, protocol.Request{Kind: protocol.GetRegistryHost})
	if got.Ok == nil || got.Ok.Kind != protocol.GotRegistryHost || got.Ok.Hostname != "reg.example" {
		t.Errorf("GetRegistryHost = %+v", got)
	}
}

func TestControlUnknownKind(t *testing.T) {
	h := NewControl(newStore(t))
	if _, err := h.Handle(context.Background(), hctx, protocol.Request{Kind: "Reboot"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := NewLogging(NewControl(newStore(t)), logger)

	handle(t, h, protocol.Request{Kind: protocol.CreateApplication, Name: "blog", Hostname: "blog.example"})
	handle(t, h, protocol.Request{Kind: protocol.CreateApplication, Name: "blog", Hostname: "blog.example"})

	out := buf.String()
	for _, want := range []string{"session=test-session", "kind=CreateApplication", "name=blog", "outcome=ok", "outcome=NameInUse"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestInstrumented(t *testing.T) {
	m := metrics.New("test", prometheus.NewRegistry())
	failing := HandlerFunc(func(ctx context.Context, hctx *Context, req protocol.Request) (protocol.Response, error) {
		return protocol.Response{}, errors.New("broken")
	})

	h := NewInstrumented(NewControl(newStore(t)), m)
	handle(t, h, protocol.Request{Kind: protocol.GetApplication, Name: "x"})
	handle(t, h, protocol.Request{Kind: protocol.GetApplications})

	if _, err := NewInstrumented(failing, m).Handle(context.Background(), hctx, protocol.Request{Kind: protocol.GetApplications}); err == nil {
		t.Fatal("error not propagated")
	}

	checks := []struct {
		kind, outcome string
		want          float64
	}{
		{"GetApplication", "ApplicationNotFound", 1},
		{"GetApplications", "ok", 1},
		{"GetApplications", "error", 1},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(m.ControlRequests.WithLabelValues(c.kind, c.outcome)); got != c.want {
			t.Errorf("%s/%s = %v, want %v", c.kind, c.outcome, got, c.want)
		}
	}
}
