// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

// Package registry serves the page shown on the registry hostname.
package registry

import (
	"io"
	"net/http"
)

const page = "<h1>Registry says 'Hello, World!'</h1>\n"

// Handler answers every request with the registry landing page.
type Handler struct{}

// New creates a registry handler.
func New() *Handler {
	return &Handler{}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, page)
}
