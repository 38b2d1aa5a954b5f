// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

// Package client talks to a running daemon over its control socket.
//
// A Client may be shared by goroutines. Requests are written in order and
// each reply is delivered to the caller whose message ID it echoes.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/jensmeindertsma/sail/pkg/parser/jsonl"
	"github.com/jensmeindertsma/sail/pkg/protocol"
)

// DefaultSocket is where the service manager places the control socket.
const DefaultSocket = "/run/sail.socket"

var (
	// ErrReplyMismatch is returned when the daemon answers an ID that has
	// no outstanding request.
	ErrReplyMismatch = errors.New("reply does not match any outstanding request")

	// ErrClosed is returned by Do after Close.
	ErrClosed = errors.New("client closed")

	// ErrTooManyOutstanding is returned when every message ID is in use.
	ErrTooManyOutstanding = errors.New("too many outstanding requests")
)

// Client is a connection to the control channel.
type Client struct {
	conn net.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint8
	pending map[uint8]chan protocol.Response
	err     error
	done    chan struct{}
}

// Dial connects to the control socket at path.
func Dial(ctx context.Context, path string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", path, err)
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	c := &Client{
		conn:    conn,
		nextID:  1,
		pending: make(map[uint8]chan protocol.Response),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Do sends req and waits for its reply. A domain failure is returned as a
// response, not an error; use Response.Error to treat it as one. If the
// connection drops first, the response is a ConnectionClosed failure.
func (c *Client) Do(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	id, ch, err := c.register()
	if err != nil {
		return protocol.Response{}, err
	}

	c.writeMu.Lock()
	err = jsonl.WriteRecord(c.conn, protocol.Message{ID: id, Request: req})
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return protocol.Response{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		c.forget(id)
		return protocol.Response{}, ctx.Err()
	}
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the connection. Outstanding requests resolve to
// ConnectionClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.err == nil {
		c.err = ErrClosed
	}
	c.mu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) register() (uint8, chan protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return 0, nil, c.err
	}

	// IDs run 1..255 and wrap; zero is never used.
	for range 255 {
		id := c.nextID
		c.nextID++
		if c.nextID == 0 {
			c.nextID = 1
		}
		if _, busy := c.pending[id]; !busy {
			ch := make(chan protocol.Response, 1)
			c.pending[id] = ch
			return id, ch, nil
		}
	}
	return 0, nil, ErrTooManyOutstanding
}

func (c *Client) forget(id uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

func (c *Client) readLoop() {
	defer close(c.done)

	reader := bufio.NewReader(c.conn)
	var cause error
	for {
		line, err := jsonl.ReadRecord(reader, jsonl.DefaultMaxRecordSize)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				cause = err
			}
			break
		}

		var reply protocol.Reply
		if err := json.Unmarshal(line, &reply); err != nil {
			cause = fmt.Errorf("malformed reply: %w", err)
			break
		}

		c.mu.Lock()
		ch, ok := c.pending[reply.Regarding]
		delete(c.pending, reply.Regarding)
		c.mu.Unlock()
		if !ok {
			cause = fmt.Errorf("%w: id %d", ErrReplyMismatch, reply.Regarding)
			break
		}
		ch <- reply.Response
	}

	c.conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = cause
		if c.err == nil {
			c.err = protocol.ConnectionClosed
		}
	}
	for id, ch := range c.pending {
		ch <- protocol.Err(protocol.ConnectionClosed)
		delete(c.pending, id)
	}
}
