// Package ui provides a read-only debug HTTP surface for the engine:
// global metrics, per-session stats and rendered session summaries.
package ui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"net/http"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/contextfold/contextfold"
)

// Logger matches contextfold.Logger so callers can reuse one logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// Config holds handler configuration.
type Config struct {
	// Logger for request errors. If nil, logging is disabled.
	Logger Logger
}

type handler struct {
	engine    *contextfold.Engine
	logger    Logger
	markdown  goldmark.Markdown
	sanitizer *bluemonday.Policy
}

// Handler returns a read-only http.Handler exposing the engine's
// introspection surface:
//
//	GET /metrics                  global engine counters
//	GET /sessions                 live session ids with stats
//	GET /sessions/{id}            one session's stats and layers
//	GET /sessions/{id}/summary    the session summary rendered as HTML
//
// Mount it under a prefix with http.StripPrefix. Summary markdown comes
// partly from model output, so the rendered HTML is sanitized before
// serving.
func Handler(engine *contextfold.Engine, cfg *Config) http.Handler {
	logger := Logger(noopLogger{})
	if cfg != nil && cfg.Logger != nil {
		logger = cfg.Logger
	}

	h := &handler{
		engine: engine,
		logger: logger,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
		sanitizer: bluemonday.UGCPolicy(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", h.metrics)
	mux.HandleFunc("GET /sessions", h.sessions)
	mux.HandleFunc("GET /sessions/{id}", h.session)
	mux.HandleFunc("GET /sessions/{id}/summary", h.summary)
	return mux
}

func (h *handler) metrics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.engine.Metrics())
}

type sessionListEntry struct {
	SessionID string                   `json:"session_id"`
	Stats     contextfold.SessionStats `json:"stats"`
}

func (h *handler) sessions(w http.ResponseWriter, r *http.Request) {
	ids := h.engine.SessionIDs()
	entries := make([]sessionListEntry, 0, len(ids))
	for _, id := range ids {
		stats, err := h.engine.SessionStats(id)
		if err != nil {
			// Session cleared between listing and lookup.
			continue
		}
		entries = append(entries, sessionListEntry{SessionID: id, Stats: stats})
	}
	h.writeJSON(w, entries)
}

type sessionDetail struct {
	SessionID string                     `json:"session_id"`
	Stats     contextfold.SessionStats   `json:"stats"`
	Layers    []contextfold.SummaryLayer `json:"layers"`
}

func (h *handler) session(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	stats, err := h.engine.SessionStats(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	layers, err := h.engine.SessionLayers(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	h.writeJSON(w, sessionDetail{SessionID: id, Stats: stats, Layers: layers})
}

func (h *handler) summary(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	summaryText, entityMapText, err := h.engine.SessionSummary(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	source := entityMapText
	if summaryText != "" {
		if source != "" {
			source += "\n\n"
		}
		source += summaryText
	}

	var rendered bytes.Buffer
	if err := h.markdown.Convert([]byte(source), &rendered); err != nil {
		h.logger.Error("markdown render failed", "session_id", id, "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!DOCTYPE html>\n<html><head><title>session %s</title></head><body>\n", html.EscapeString(id))
	w.Write(h.sanitizer.SanitizeBytes(rendered.Bytes()))
	w.Write([]byte("\n</body></html>\n"))
}

func (h *handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response failed", "error", err)
	}
}
