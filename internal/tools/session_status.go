package tools

import (
	"context"
	"encoding/json"
	"os"

	"github.com/bashclaw/bashclaw/internal/sessions"
)

// SessionStatusTool reports the size and location of the current session.
type SessionStatusTool struct {
	store *sessions.Store
}

func NewSessionStatusTool(store *sessions.Store) *SessionStatusTool {
	return &SessionStatusTool{store: store}
}

func (t *SessionStatusTool) Name() string { return "session_status" }

func (t *SessionStatusTool) Description() string {
	return "Report the current conversation session: entry count and storage key."
}

func (t *SessionStatusTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent":   map[string]any{"type": "string"},
			"channel": map[string]any{"type": "string"},
			"sender":  map[string]any{"type": "string"},
		},
	}
}

func (t *SessionStatusTool) Execute(ctx context.Context, args map[string]any) *Result {
	agent, _ := args["agent"].(string)
	if agent == "" {
		agent = "main"
	}
	channel, _ := args["channel"].(string)
	sender, _ := args["sender"].(string)

	file := t.store.FilePath(agent, channel, sender)
	_, statErr := os.Stat(file)

	payload, _ := json.Marshal(map[string]any{
		"agent":   agent,
		"file":    file,
		"exists":  statErr == nil,
		"entries": t.store.Count(file),
	})
	return NewResult(string(payload))
}
