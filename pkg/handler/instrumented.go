// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"time"

	"github.com/jensmeindertsma/sail/pkg/metrics"
	"github.com/jensmeindertsma/sail/pkg/protocol"
)

var _ Handler = (*Instrumented)(nil)

// Instrumented records request counts and durations.
type Instrumented struct {
	handler Handler
	metrics *metrics.Metrics
}

// NewInstrumented wraps h. A nil m records nothing.
func NewInstrumented(h Handler, m *metrics.Metrics) *Instrumented {
	return &Instrumented{
		handler: h,
		metrics: m,
	}
}

// Handle implements Handler.
func (h *Instrumented) Handle(ctx context.Context, hctx *Context, req protocol.Request) (protocol.Response, error) {
	start := time.Now()

	resp, err := h.handler.Handle(ctx, hctx, req)

	outcome := Outcome(resp)
	if err != nil {
		outcome = "error"
	}
	h.metrics.ObserveControlRequest(string(req.Kind), outcome, time.Since(start))

	return resp, err
}
