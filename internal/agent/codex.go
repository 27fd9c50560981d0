package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/bashclaw/bashclaw/internal/hooks"
)

// runCodex delegates the run to the external codex CLI. The adaptor mirrors
// runClaude but without the settings bridge, which codex does not support.
func (e *Engine) runCodex(ctx context.Context, req RunRequest, file string) (string, error) {
	prompt := e.wrapPrompt(req.Agent, req.Message, req.IsSubagent)

	args := []string{"exec", "--json"}
	prior := e.sessions.MetaGetString(file, "codex_session_id", "")
	if prior != "" {
		args = append(args, "resume", prior)
	} else {
		e.fireVoid(ctx, hooks.EventSessionStart, map[string]any{
			"agent_id": req.Agent,
			"engine":   EngineCodex,
		})
	}
	args = append(args, prompt)

	cmd := exec.CommandContext(ctx, "codex", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("codex cli: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	result, sessionID := parseCodexOutput(stdout.String())
	if result == "" {
		slog.Warn("agent: unparseable codex output", "agent", req.Agent)
		return "", nil
	}

	if err := e.sessions.Append(file, "user", req.Message); err != nil {
		slog.Warn("agent: persist user turn", "error", err)
	}
	if err := e.sessions.Append(file, "assistant", result); err != nil {
		slog.Warn("agent: persist assistant turn", "error", err)
	}
	if sessionID != "" {
		if err := e.sessions.MetaUpdate(file, "codex_session_id", sessionID); err != nil {
			slog.Warn("agent: persist codex_session_id", "error", err)
		}
	}
	e.appendUsage(usageRecord{Agent: req.Agent, Engine: EngineCodex})
	return result, nil
}

// parseCodexOutput scans the CLI's JSONL stream for the final agent message
// and the session id.
func parseCodexOutput(out string) (result, sessionID string) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var ev struct {
			Type      string `json:"type"`
			SessionID string `json:"session_id"`
			Message   string `json:"message"`
			Text      string `json:"text"`
		}
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		if ev.SessionID != "" {
			sessionID = ev.SessionID
		}
		switch ev.Type {
		case "agent_message", "result":
			if ev.Message != "" {
				result = ev.Message
			} else if ev.Text != "" {
				result = ev.Text
			}
		}
	}
	return result, sessionID
}
