// Package httpapi serves the JSON and SSE surface used by UIs.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noamisr/maestro/core"
	"github.com/noamisr/maestro/internal/logx"
	"github.com/noamisr/maestro/internal/skill"
)

// Skills is the registry surface served over HTTP.
type Skills interface {
	Describe() []skill.Descriptor
	Invoke(ctx context.Context, id string, params map[string]any) skill.Result
}

// CommandHandler routes slash commands.
type CommandHandler interface {
	Handle(ctx context.Context, input string) (skill.Result, bool, error)
}

// Server serves the HTTP API.
type Server struct {
	cfg        Config
	state      core.StateReader
	skills     Skills
	cmdHandler CommandHandler
	hub        *Hub
	basePath   string
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, state core.StateReader, skills Skills, handler CommandHandler, hub *Hub) *Server {
	if hub == nil {
		hub = NewHub(cfg.History)
	}
	return &Server{
		cfg:        cfg,
		state:      state,
		skills:     skills,
		cmdHandler: handler,
		hub:        hub,
		basePath:   normalizeBasePath(cfg.BasePath),
	}
}

// Hub returns the change hub feeding the stream endpoint.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/skills", s.handleSkills)
	mux.HandleFunc("/api/skills/invoke", s.handleInvoke)
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.HandleFunc("/api/stream", s.handleStream)

	handler := withRequestLogging(mux)
	handler = otelhttp.NewHandler(handler, "maestro.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return mountAt(s.basePath, handler)
}

// StatePayload is the /api/state response.
type StatePayload struct {
	State core.Snapshot `json:"state"`
	View  core.View     `json:"view"`
	Seq   uint64        `json:"seq"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.statePayload())
}

func (s *Server) statePayload() StatePayload {
	seq := s.hub.Seq()
	snap := s.state.Snapshot()
	return StatePayload{State: snap, View: core.ViewOf(snap), Seq: seq}
}

func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	descs := s.skills.Describe()
	if category := r.URL.Query().Get("category"); category != "" {
		filtered := make([]skill.Descriptor, 0, len(descs))
		for _, desc := range descs {
			if strings.EqualFold(string(desc.Category), category) {
				filtered = append(filtered, desc)
			}
		}
		descs = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": descs})
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	var payload struct {
		ID     string         `json:"id"`
		Params map[string]any `json:"params"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http invoke decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.ID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("skill id is required"))
		return
	}
	ctx := logx.ContextWithOriginLogger(r.Context(), "http")
	result := s.skills.Invoke(ctx, payload.ID, payload.Params)
	writeJSON(w, http.StatusOK, result)
	log.Info("http invoke done", "skill", payload.ID, "success", result.Success)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	var payload struct {
		Input string `json:"input"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http command decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	log = log.With("input_len", len(payload.Input))
	ctx := logx.ContextWithOriginLogger(r.Context(), "http")
	result, handled, err := s.cmdHandler.Handle(ctx, payload.Input)
	if err != nil {
		log.Warn("http command failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !handled {
		writeError(w, http.StatusBadRequest, errors.New("not a command; try /help"))
		log.Info("http command rejected", "reason", "not a command")
		return
	}
	writeJSON(w, http.StatusOK, result)
	log.Info("http command done", "success", result.Success)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := parseUint(r.Header.Get("Last-Event-ID"))
	ch, unsubscribe, subscribedAt := s.hub.Subscribe()
	defer unsubscribe()

	snap := s.state.Snapshot()
	_ = writeSSEvent(w, StreamEvent{
		Type:      EventSnapshot,
		State:     snap,
		View:      core.ViewOf(snap),
		Timestamp: time.Now(),
	})
	flusher.Flush()

	sent := subscribedAt
	replayCount := 0
	if lastID > 0 && lastID < subscribedAt {
		replay := s.hub.Replay(lastID, subscribedAt)
		replayCount = len(replay)
		for _, event := range replay {
			_ = writeSSEvent(w, event)
		}
		flusher.Flush()
	}

	notify := r.Context().Done()
	log.Info("http stream opened", "last_id", lastID, "replay", replayCount, "seq", subscribedAt)
	for {
		select {
		case <-notify:
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Seq <= sent {
				continue
			}
			sent = event.Seq
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", event.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
