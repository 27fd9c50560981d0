// Package gateway implements the HTTP surface: health and status, the chat
// API, the config API, an OpenAI-compatible shim, a websocket event feed,
// and static UI serving.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bashclaw/bashclaw/internal/agent"
	"github.com/bashclaw/bashclaw/internal/autoreply"
	"github.com/bashclaw/bashclaw/internal/bus"
	"github.com/bashclaw/bashclaw/internal/config"
)

const defaultMaxBodyBytes = 1 << 20

// Server is the gateway HTTP server.
type Server struct {
	cfg       *config.Store
	engine    *agent.Engine
	bus       *bus.Bus
	autoreply *autoreply.Store
	uiDir     string

	mux      *http.ServeMux
	upgrader websocket.Upgrader
	limiter  *rateLimiter
	started  time.Time
}

// NewServer wires the gateway.
func NewServer(cfg *config.Store, eng *agent.Engine, b *bus.Bus, replies *autoreply.Store, uiDir string) *Server {
	s := &Server{
		cfg:       cfg,
		engine:    eng,
		bus:       b,
		autoreply: replies,
		uiDir:     uiDir,
		limiter:   newRateLimiter(cfg.GetInt("gateway.rateLimitRPM", 0)),
		started:   time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkWSOrigin,
	}
	return s
}

// checkWSOrigin mirrors the CORS policy for websocket upgrades: empty origin
// (non-browser clients) always passes.
func (s *Server) checkWSOrigin(r *http.Request) bool {
	origins := s.cfg.GetStrings("gateway.cors.origins")
	if len(origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range origins {
		if o == origin {
			return true
		}
	}
	return false
}

// BuildMux registers all routes behind the middleware chain.
func (s *Server) BuildMux() http.Handler {
	if s.mux == nil {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", s.handleHealth)
		mux.HandleFunc("/api/status", s.handleStatus)
		mux.HandleFunc("/api/chat", s.handleChat)
		mux.HandleFunc("/api/message/send", s.handleMessageSend)
		mux.HandleFunc("/api/config", s.handleConfig)
		mux.HandleFunc("/api/config/set", s.handleConfigSet)
		mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
		mux.HandleFunc("/v1/models", s.handleModels)
		mux.HandleFunc("/ws", s.handleWebSocket)
		mux.HandleFunc("/ui/", s.handleUI)
		s.mux = mux
	}
	return s.middleware(s.mux)
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	port := s.cfg.GetInt("gateway.port", 18900)
	addr := fmt.Sprintf("%s:%d", s.cfg.GetString("gateway.host", "127.0.0.1"), port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.BuildMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("gateway: listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// authExempt paths never require a token.
func authExempt(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	switch r.URL.Path {
	case "/health", "/api/status":
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/ui/")
}

// middleware applies body limits, CORS, auth and rate limiting.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		maxBody := int64(s.cfg.GetInt("gateway.maxBodySize", defaultMaxBodyBytes))
		if r.ContentLength > maxBody {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)

		s.applyCORS(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		if token := s.cfg.GetString("gateway.auth.token", ""); token != "" && !authExempt(r) {
			got := r.Header.Get("Authorization")
			if got != "Bearer "+token && got != token {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}

		if !s.limiter.allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// applyCORS: with no configured origins every response carries a wildcard;
// with a list, matching origins are echoed and mismatches get no header.
func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) {
	origins := s.cfg.GetStrings("gateway.cors.origins")
	if len(origins) == 0 {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		origin := r.Header.Get("Origin")
		for _, o := range origins {
			if o == origin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}
	}
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	}
}

func clientIP(r *http.Request) string {
	if i := strings.LastIndex(r.RemoteAddr, ":"); i > 0 {
		return r.RemoteAddr[:i]
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
