package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/bashclaw/bashclaw/internal/agent"
	"github.com/bashclaw/bashclaw/internal/version"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    version.Version,
		"go":         runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
		"uptime_s":   int(time.Since(s.started).Seconds()),
		"agents":     s.cfg.AgentIDs(),
	})
}

type chatRequest struct {
	Message string `json:"message"`
	Agent   string `json:"agent"`
	Channel string `json:"channel"`
	Sender  string `json:"sender"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "request body required")
		return
	}
	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.Channel == "" {
		req.Channel = "web"
	}

	// Autoreply rules short-circuit the engine.
	if resp, ok := s.autoreply.Check(req.Message, req.Channel); ok {
		writeJSON(w, http.StatusOK, map[string]any{"message": resp, "autoreply": true})
		return
	}

	text, err := s.engine.Run(r.Context(), agent.RunRequest{
		Agent:   req.Agent,
		Message: req.Message,
		Channel: req.Channel,
		Sender:  req.Sender,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": text})
}

// handleMessageSend is the channel-send path: same engine pipeline keyed by
// an explicit channel/recipient pair.
func (s *Server) handleMessageSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Channel string `json:"channel"`
		To      string `json:"to"`
		Message string `json:"message"`
		Agent   string `json:"agent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Channel == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "channel and message are required")
		return
	}

	text, err := s.engine.Run(r.Context(), agent.RunRequest{
		Agent:   req.Agent,
		Message: req.Message,
		Channel: req.Channel,
		Sender:  req.To,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"delivered": true, "response": text})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.cfg.Tree(true))
	case http.MethodPost:
		s.handleConfigSet(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleConfigSet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	if err := s.cfg.Backup(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.cfg.Set(req.Key, req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "key": req.Key})
}

// handleUI serves static files from the UI directory, refusing any path that
// tries to climb out of it.
func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, "/ui/")
	if strings.Contains(r.URL.Path, "..") {
		writeError(w, http.StatusBadRequest, "path traversal")
		return
	}
	if rel == "" {
		rel = "index.html"
	}
	path := filepath.Join(s.uiDir, filepath.FromSlash(rel))
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	http.ServeFile(w, r, path)
}
