// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

// Package dashboard serves the status page shown on the dashboard hostname.
package dashboard

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/jensmeindertsma/sail/pkg/settings"
)

var page = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head><title>sail</title></head>
<body>
<h1>Dashboard says 'Hello, World!'</h1>
<table>
<tr><th>Name</th><th>Hostname</th><th>Backend</th></tr>
{{- range .Applications}}
<tr><td>{{.Name}}</td><td>{{.Hostname}}</td><td>{{with .Address}}{{.}}{{else}}none{{end}}</td></tr>
{{- else}}
<tr><td colspan="3">No applications yet.</td></tr>
{{- end}}
</table>
<p>Serving on port {{.ServerPort}}. Registry at {{.Registry.Hostname}}.</p>
</body>
</html>
`))

// Handler renders the dashboard from the live settings.
type Handler struct {
	store  *settings.Store
	logger *slog.Logger
}

// New creates a dashboard handler.
func New(store *settings.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "405 Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, h.store.Get()); err != nil {
		h.logger.Error("failed to render dashboard", slog.String("error", err.Error()))
	}
}
