// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

// Package jsonl implements the control channel framing: one JSON document
// per line in both directions.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	sailerrors "github.com/jensmeindertsma/sail/pkg/errors"
	"github.com/jensmeindertsma/sail/pkg/handler"
	"github.com/jensmeindertsma/sail/pkg/parser"
	"github.com/jensmeindertsma/sail/pkg/protocol"
)

// DefaultMaxRecordSize bounds a single request line.
const DefaultMaxRecordSize = 1 << 20

var _ parser.Parser = (*Parser)(nil)

// Parser decodes protocol.Message lines and encodes protocol.Reply lines.
type Parser struct {
	maxRecordSize int
}

// New returns a parser that rejects records longer than maxRecordSize bytes.
// Zero selects DefaultMaxRecordSize.
func New(maxRecordSize int) *Parser {
	if maxRecordSize <= 0 {
		maxRecordSize = DefaultMaxRecordSize
	}
	return &Parser{maxRecordSize: maxRecordSize}
}

// Parse implements parser.Parser.
func (p *Parser) Parse(ctx context.Context, r *bufio.Reader, w io.Writer, h handler.Handler, hctx *handler.Context) error {
	line, err := ReadRecord(r, p.maxRecordSize)
	if err != nil {
		return err
	}
	// Tolerate blank lines between records.
	if len(bytes.TrimSpace(line)) == 0 {
		return nil
	}

	var msg protocol.Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return sailerrors.NewProtocol("decode", hctx.SessionID,
			fmt.Errorf("%w: %w", sailerrors.ErrProtocolViolation, err))
	}

	if ctx.Err() != nil {
		if err := WriteRecord(w, protocol.Reply{
			Regarding: msg.ID,
			Response:  protocol.Err(protocol.ConnectionClosed),
		}); err != nil {
			return err
		}
		return parser.ErrClosing
	}

	resp, err := h.Handle(ctx, hctx, msg.Request)
	if err != nil {
		return err
	}

	return WriteRecord(w, protocol.Reply{Regarding: msg.ID, Response: resp})
}

// ReadRecord returns the next newline-terminated record from r, without the
// newline. A final record without a newline is returned as is; io.EOF is
// returned only when no data remains.
func ReadRecord(r *bufio.Reader, max int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > max+1 {
			return nil, sailerrors.ErrSizeLimitExceeded
		}

		switch {
		case err == nil:
			return bytes.TrimRight(line, "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(line) > 0 {
				return line, nil
			}
			return nil, io.EOF
		default:
			return nil, err
		}
	}
}

// WriteRecord encodes v as one line and writes it with a single Write.
func WriteRecord(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return sailerrors.NewTransport("write", "", err)
	}
	return nil
}
