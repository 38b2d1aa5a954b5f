// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jensmeindertsma/sail/pkg/handler"
	"github.com/jensmeindertsma/sail/pkg/parser/jsonl"
	"github.com/jensmeindertsma/sail/pkg/protocol"
	"github.com/jensmeindertsma/sail/pkg/server/control"
	"github.com/jensmeindertsma/sail/pkg/settings"
)

func startDaemon(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sail.socket")
	l, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := control.New(control.Config{
		Listener: l,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, jsonl.New(0), handler.NewControl(settings.New("", settings.Default())))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Listen(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return path
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDoAgainstServer(t *testing.T) {
	ctx := testContext(t)
	c, err := Dial(ctx, startDaemon(t))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	resp, err := c.Do(ctx, protocol.Request{Kind: protocol.CreateApplication, Name: "blog", Hostname: "blog.example"})
	if err != nil || !resp.IsOk() {
		t.Fatalf("create = %+v, %v", resp, err)
	}

	resp, err = c.Do(ctx, protocol.Request{Kind: protocol.CreateApplication, Name: "blog", Hostname: "x.example"})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !errors.Is(resp.Error(), protocol.NameInUse) {
		t.Errorf("duplicate create = %v, want NameInUse", resp.Error())
	}

	resp, err = c.Do(ctx, protocol.Request{Kind: protocol.GetApplication, Name: "blog"})
	if err != nil || resp.Ok == nil {
		t.Fatalf("get = %+v, %v", resp, err)
	}
	if resp.Ok.Application.Hostname != "blog.example" {
		t.Errorf("hostname = %q", resp.Ok.Application.Hostname)
	}
}

func TestConcurrentCallers(t *testing.T) {
	ctx := testContext(t)
	c, err := Dial(ctx, startDaemon(t))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	const callers = 20
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("app%d", i)
			resp, err := c.Do(ctx, protocol.Request{Kind: protocol.CreateApplication, Name: name, Hostname: name + ".example"})
			if err != nil {
				errs <- err
				return
			}
			errs <- resp.Error()
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("caller failed: %v", err)
		}
	}

	resp, err := c.Do(ctx, protocol.Request{Kind: protocol.GetApplications})
	if err != nil || resp.Ok == nil {
		t.Fatalf("list = %+v, %v", resp, err)
	}
	if len(resp.Ok.Applications) != callers {
		t.Errorf("applications = %d, want %d", len(resp.Ok.Applications), callers)
	}
}

// fakeDaemon answers each message with reply(id).
func fakeDaemon(t *testing.T, conn net.Conn, ids chan<- uint8, reply func(id uint8) (uint8, bool)) {
	t.Helper()
	go func() {
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := jsonl.ReadRecord(r, jsonl.DefaultMaxRecordSize)
			if err != nil {
				return
			}
			var msg protocol.Message
			if err := json.Unmarshal(line, &msg); err != nil {
				return
			}
			if ids != nil {
				ids <- msg.ID
			}
			regarding, ok := reply(msg.ID)
			if !ok {
				return
			}
			jsonl.WriteRecord(conn, protocol.Reply{
				Regarding: regarding,
				Response:  protocol.Ok(protocol.Success{Kind: protocol.DeletedApplication}),
			})
		}
	}()
}

func TestIDsIncrease(t *testing.T) {
	ctx := testContext(t)
	server, conn := net.Pipe()
	ids := make(chan uint8, 3)
	fakeDaemon(t, server, ids, func(id uint8) (uint8, bool) { return id, true })

	c := New(conn)
	defer c.Close()

	for i := 0; i < 3; i++ {
		if _, err := c.Do(ctx, protocol.Request{Kind: protocol.DeleteApplication, Name: "a"}); err != nil {
			t.Fatalf("Do() error = %v", err)
		}
	}
	for want := uint8(1); want <= 3; want++ {
		if got := <-ids; got != want {
			t.Errorf("id = %d, want %d", got, want)
		}
	}
}

func TestReplyMismatch(t *testing.T) {
	ctx := testContext(t)
	server, conn := net.Pipe()
	fakeDaemon(t, server, nil, func(id uint8) (uint8, bool) { return id + 100, true })

	c := New(conn)
	defer c.Close()

	resp, err := c.Do(ctx, protocol.Request{Kind: protocol.DeleteApplication, Name: "a"})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.Err != protocol.ConnectionClosed {
		t.Errorf("response = %+v, want ConnectionClosed", resp)
	}
	if !errors.Is(c.Err(), ErrReplyMismatch) {
		t.Errorf("Err() = %v, want ErrReplyMismatch", c.Err())
	}
}

func TestConnectionDropped(t *testing.T) {
	ctx := testContext(t)
	server, conn := net.Pipe()
	fakeDaemon(t, server, nil, func(id uint8) (uint8, bool) { return 0, false })

	c := New(conn)
	defer c.Close()

	resp, err := c.Do(ctx, protocol.Request{Kind: protocol.GetApplications})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.Err != protocol.ConnectionClosed {
		t.Errorf("response = %+v, want ConnectionClosed", resp)
	}

	// Later calls fail fast.
	if _, err := c.Do(ctx, protocol.Request{Kind: protocol.GetApplications}); err == nil {
		t.Error("Do() after disconnect succeeded")
	}
}

func TestDoAfterClose(t *testing.T) {
	server, conn := net.Pipe()
	defer server.Close()
	go io.Copy(io.Discard, server)

	c := New(conn)
	c.Close()

	if _, err := c.Do(context.Background(), protocol.Request{Kind: protocol.GetApplications}); !errors.Is(err, ErrClosed) {
		t.Errorf("Do() error = %v, want ErrClosed", err)
	}
}
