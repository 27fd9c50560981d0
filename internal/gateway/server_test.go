package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bashclaw/bashclaw/internal/agent"
	"github.com/bashclaw/bashclaw/internal/autoreply"
	"github.com/bashclaw/bashclaw/internal/bus"
	"github.com/bashclaw/bashclaw/internal/config"
	"github.com/bashclaw/bashclaw/internal/hooks"
	"github.com/bashclaw/bashclaw/internal/memory"
	"github.com/bashclaw/bashclaw/internal/providers"
	"github.com/bashclaw/bashclaw/internal/sessions"
	"github.com/bashclaw/bashclaw/internal/tools"
)

func newTestServer(t *testing.T, reply string) (*Server, *config.Store) {
	t.Helper()
	base := t.TempDir()

	cfg, err := config.Open(filepath.Join(base, "bashclaw.json"))
	if err != nil {
		t.Fatal(err)
	}
	eng := agent.New(agent.Options{
		Config:    cfg,
		Sessions:  sessions.NewStore(filepath.Join(base, "sessions"), ""),
		Memory:    memory.NewStore(filepath.Join(base, "memory"), filepath.Join(base, "agents")),
		Registry:  tools.NewRegistry(),
		Hooks:     hooks.NewDispatcher(filepath.Join(base, "hooks")),
		Bus:       bus.New(),
		AgentsDir: filepath.Join(base, "agents"),
	})
	eng.SetProviderFactory(func(string) (providers.Provider, error) {
		return providers.NewMockProvider(providers.MockText(reply)), nil
	})
	replies := autoreply.NewStore(filepath.Join(base, "autoreply.json"))
	uiDir := filepath.Join(base, "ui")
	os.MkdirAll(uiDir, 0o755)
	os.WriteFile(filepath.Join(uiDir, "index.html"), []byte("<html>ui</html>"), 0o644)

	return NewServer(cfg, eng, bus.New(), replies, uiDir), cfg
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthNoAuth(t *testing.T) {
	s, cfg := newTestServer(t, "x")
	cfg.Set("gateway.auth.token", "secret")
	h := s.BuildMux()

	rec := doJSON(t, h, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/health = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/status", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/status = %d", rec.Code)
	}
}

func TestAuthTokenForms(t *testing.T) {
	s, cfg := newTestServer(t, "hello")
	cfg.Set("gateway.auth.token", "secret")
	h := s.BuildMux()

	body := map[string]any{"message": "hi"}
	if rec := doJSON(t, h, http.MethodPost, "/api/chat", body, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/api/chat", body,
		map[string]string{"Authorization": "Bearer wrong"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/api/chat", body,
		map[string]string{"Authorization": "Bearer secret"}); rec.Code != http.StatusOK {
		t.Errorf("bearer token = %d, want 200", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/api/chat", body,
		map[string]string{"Authorization": "secret"}); rec.Code != http.StatusOK {
		t.Errorf("raw token = %d, want 200", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	s, cfg := newTestServer(t, "x")
	h := s.BuildMux()

	// No origins configured: wildcard on everything.
	rec := doJSON(t, h, http.MethodGet, "/health", nil, nil)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("wildcard CORS = %q", got)
	}

	cfg.Set("gateway.cors.origins", []any{"https://app.example.com"})
	h = s.BuildMux()
	rec = doJSON(t, h, http.MethodGet, "/health", nil,
		map[string]string{"Origin": "https://app.example.com"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("matching origin echoed = %q", got)
	}
	rec = doJSON(t, h, http.MethodGet, "/health", nil,
		map[string]string{"Origin": "https://evil.example.com"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("mismatched origin must omit header, got %q", got)
	}

	// Preflight always 200.
	rec = doJSON(t, h, http.MethodOptions, "/api/chat", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("preflight = %d", rec.Code)
	}
}

func TestBodyTooLarge(t *testing.T) {
	s, cfg := newTestServer(t, "x")
	cfg.Set("gateway.maxBodySize", 128)
	h := s.BuildMux()

	big := map[string]any{"message": strings.Repeat("a", 1024)}
	rec := doJSON(t, h, http.MethodPost, "/api/chat", big, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body = %d, want 413", rec.Code)
	}
}

func TestChatValidationAndRun(t *testing.T) {
	s, _ := newTestServer(t, "the answer")
	h := s.BuildMux()

	rec := doJSON(t, h, http.MethodPost, "/api/chat", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty body = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, "/api/chat", map[string]any{"agent": "main"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing message = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/chat", map[string]any{"message": "hi", "sender": "u"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Message string `json:"message"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Message != "the answer" {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestChatAutoreplyShortCircuit(t *testing.T) {
	s, _ := newTestServer(t, "engine reply")
	s.autoreply.Add(autoreply.Rule{Pattern: "ping", Response: "pong", Priority: 1})
	h := s.BuildMux()

	rec := doJSON(t, h, http.MethodPost, "/api/chat", map[string]any{"message": "ping"}, nil)
	var resp struct {
		Message   string `json:"message"`
		Autoreply bool   `json:"autoreply"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Autoreply || resp.Message != "pong" {
		t.Errorf("autoreply did not short-circuit: %+v", resp)
	}
}

func TestOpenAIShimValidation(t *testing.T) {
	s, _ := newTestServer(t, "x")
	h := s.BuildMux()

	tests := []struct {
		name string
		body any
		want string
	}{
		{"empty body", nil, "request body required"},
		{"stream", map[string]any{"stream": true, "messages": []any{map[string]any{"role": "user", "content": "q"}}}, "streaming not supported"},
		{"no messages", map[string]any{"model": "gpt-4o"}, "messages array is required"},
		{"no user", map[string]any{"messages": []any{map[string]any{"role": "system", "content": "s"}}}, "no user message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/v1/chat/completions", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("code = %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body = %s, want %q", rec.Body.String(), tt.want)
			}
		})
	}
}

func TestOpenAIShimResponseShape(t *testing.T) {
	s, _ := newTestServer(t, "shim reply")
	h := s.BuildMux()

	rec := doJSON(t, h, http.MethodPost, "/v1/chat/completions", map[string]any{
		"model": "gpt-4o",
		"messages": []any{
			map[string]any{"role": "system", "content": "be brief"},
			map[string]any{"role": "user", "content": "question"},
		},
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(resp.ID, "chatcmpl-") || resp.Object != "chat.completion" || resp.Model != "gpt-4o" {
		t.Errorf("envelope = %+v", resp)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "shim reply" ||
		resp.Choices[0].FinishReason != "stop" {
		t.Errorf("choices = %+v", resp.Choices)
	}
	if resp.Usage.TotalTokens != 0 {
		t.Errorf("usage must be zeroed: %+v", resp.Usage)
	}
}

func TestResolveAgent(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"agent:research", "research"},
		{"gpt-4o", "main"},
		{"claude-sonnet-4-5", "main"},
		{"gemini-pro", "main"},
		{"butler", "butler"},
		{"", "main"},
	}
	for _, tt := range tests {
		if got := resolveAgent(tt.model); got != tt.want {
			t.Errorf("resolveAgent(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}

func TestModelsList(t *testing.T) {
	s, _ := newTestServer(t, "x")
	rec := doJSON(t, s.BuildMux(), http.MethodGet, "/v1/models", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var resp struct {
		Object string `json:"object"`
		Data   []struct {
			ID     string `json:"id"`
			Object string `json:"object"`
		} `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Object != "list" || len(resp.Data) == 0 {
		t.Fatalf("models = %+v", resp)
	}
	for _, m := range resp.Data {
		if m.Object != "model" {
			t.Errorf("entry = %+v", m)
		}
	}
}

func TestUIPathTraversal(t *testing.T) {
	s, _ := newTestServer(t, "x")
	h := s.BuildMux()

	req := httptest.NewRequest(http.MethodGet, "/ui/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ui") {
		t.Errorf("index = %d: %s", rec.Code, rec.Body.String())
	}

	// ServeMux cleans dotted paths before routing, so hit the handler
	// directly to exercise the guard.
	req = httptest.NewRequest(http.MethodGet, "/ui/x", nil)
	req.URL.Path = "/ui/../../etc/passwd"
	rec = httptest.NewRecorder()
	s.handleUI(rec, req)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "path traversal") {
		t.Errorf("traversal = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownRoute404(t *testing.T) {
	s, _ := newTestServer(t, "x")
	rec := doJSON(t, s.BuildMux(), http.MethodGet, "/nope", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown route = %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	s, cfg := newTestServer(t, "x")
	cfg.Set("gateway.rateLimitRPM", 2)
	s.limiter = newRateLimiter(2)
	h := s.BuildMux()

	var last int
	for i := 0; i < 5; i++ {
		rec := doJSON(t, h, http.MethodPost, "/api/chat", map[string]any{"message": "hi"}, nil)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("burst of 5 with rpm=2 ended with %d, want 429", last)
	}
}
