// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"log/slog"

	"github.com/jensmeindertsma/sail/pkg/protocol"
)

var _ Handler = (*Logging)(nil)

// Logging logs every request and its outcome.
type Logging struct {
	handler Handler
	logger  *slog.Logger
}

// NewLogging wraps h.
func NewLogging(h Handler, logger *slog.Logger) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logging{
		handler: h,
		logger:  logger,
	}
}

// Handle implements Handler.
func (h *Logging) Handle(ctx context.Context, hctx *Context, req protocol.Request) (protocol.Response, error) {
	attrs := []any{
		slog.String("session", hctx.SessionID),
		slog.String("kind", string(req.Kind)),
	}
	if req.Name != "" {
		attrs = append(attrs, slog.String("name", req.Name))
	}

	resp, err := h.handler.Handle(ctx, hctx, req)
	if err != nil {
		h.logger.Error("control request failed", append(attrs, slog.String("error", err.Error()))...)
		return resp, err
	}

	// Reads are noisy; only mutations are worth an info line.
	level := slog.LevelInfo
	switch req.Kind {
	case protocol.GetApplication, protocol.GetApplications, protocol.GetDashboardHost, protocol.GetRegistryHost:
		level = slog.LevelDebug
	}
	h.logger.Log(ctx, level, "control request", append(attrs, slog.String("outcome", Outcome(resp)))...)

	return resp, nil
}
