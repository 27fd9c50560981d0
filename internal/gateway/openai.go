package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/bashclaw/bashclaw/internal/agent"
	"github.com/bashclaw/bashclaw/internal/util"
)

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages []openAIMessage `json:"messages"`
}

// resolveAgent maps an OpenAI model name to an agent id: "agent:<id>" wins,
// public model families route to main, anything else is taken as an agent id.
func resolveAgent(model string) string {
	if strings.HasPrefix(model, "agent:") {
		return strings.TrimPrefix(model, "agent:")
	}
	for _, family := range []string{"gpt-", "claude-", "gemini-", "o1-", "o3-"} {
		if strings.HasPrefix(model, family) {
			return "main"
		}
	}
	if model == "" {
		return "main"
	}
	return model
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
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
	var req openAIRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Stream {
		writeError(w, http.StatusBadRequest, "streaming not supported")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages array is required")
		return
	}

	// Last user message carries the prompt; system messages are folded in
	// front of it.
	lastUser := -1
	var systems []string
	for i, m := range req.Messages {
		switch m.Role {
		case "user":
			lastUser = i
		case "system":
			systems = append(systems, m.Content)
		}
	}
	if lastUser < 0 {
		writeError(w, http.StatusBadRequest, "no user message")
		return
	}
	message := req.Messages[lastUser].Content
	if len(systems) > 0 {
		message = "[System: " + strings.Join(systems, " ") + "]\n" + message
	}

	text, err := s.engine.Run(r.Context(), agent.RunRequest{
		Agent:   resolveAgent(req.Model),
		Message: message,
		Channel: "openai",
		Sender:  clientIP(r),
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":     "chatcmpl-" + util.NewID(),
		"object": "chat.completion",
		"model":  req.Model,
		"choices": []map[string]any{{
			"index": 0,
			"message": map[string]any{
				"role":    "assistant",
				"content": text,
			},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens":     0,
			"completion_tokens": 0,
			"total_tokens":      0,
		},
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	var models []map[string]any
	for _, id := range s.cfg.AgentIDs() {
		models = append(models, map[string]any{
			"id":       "agent:" + id,
			"object":   "model",
			"owned_by": "bashclaw",
		})
	}
	models = append(models, map[string]any{
		"id":       "bashclaw",
		"object":   "model",
		"owned_by": "bashclaw",
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   models,
	})
}
