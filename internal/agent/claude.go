package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/bashclaw/bashclaw/internal/hooks"
)

// Tool names mapped to the external CLI's tool vocabulary for
// --disallowedTools.
var claudeToolNames = map[string]string{
	"shell":      "Bash",
	"write_file": "Write",
	"read_file":  "Read",
	"web_fetch":  "WebFetch",
	"web_search": "WebSearch",
}

// cliResult is the JSON document the external CLI prints in -p mode.
type cliResult struct {
	Type      string `json:"type"`
	IsError   bool   `json:"is_error"`
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
	Usage     struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// writeClaudeSettings builds the per-run settings document that routes the
// CLI's PreCompact and PostToolUse hooks back through this binary.
func (e *Engine) writeClaudeSettings() (string, error) {
	hookEntry := func(event string) []map[string]any {
		return []map[string]any{{
			"hooks": []map[string]any{{
				"type":    "command",
				"command": fmt.Sprintf("%s hooks-bridge %s", e.binary, event),
			}},
		}}
	}
	settings := map[string]any{
		"hooks": map[string]any{
			"PreCompact":  hookEntry("PreCompact"),
			"PostToolUse": hookEntry("PostToolUse"),
		},
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", "bashclaw-settings-*.json")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// wrapPrompt embeds the workspace context and tool access instructions
// around the user message.
func (e *Engine) wrapPrompt(agentID, message string, isSubagent bool) string {
	var b strings.Builder
	b.WriteString("<bashclaw-context>\n")
	if sys := e.BuildSystemPrompt(agentID, isSubagent); sys != "" {
		b.WriteString(sys)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Runtime tools are reachable via: %s tool <name> '<json-args>'\n", e.binary)
	b.WriteString("</bashclaw-context>\n\n")
	b.WriteString(message)
	return b.String()
}

// runClaude delegates the run to the external claude CLI.
func (e *Engine) runClaude(ctx context.Context, req RunRequest, file string) (string, error) {
	settingsPath, err := e.writeClaudeSettings()
	if err != nil {
		return "", fmt.Errorf("claude settings: %w", err)
	}
	defer os.Remove(settingsPath)

	args := []string{
		"-p", e.wrapPrompt(req.Agent, req.Message, req.IsSubagent),
		"--output-format", "json",
		"--settings", settingsPath,
		"--setting-sources", "",
	}

	_, _, deny := e.toolConfig(req.Agent)
	var disallowed []string
	for _, name := range deny {
		if mapped, ok := claudeToolNames[name]; ok {
			disallowed = append(disallowed, mapped)
		}
	}
	if len(disallowed) > 0 {
		args = append(args, "--disallowedTools", strings.Join(disallowed, ","))
	}

	prior := e.sessions.MetaGetString(file, "cc_session_id", "")
	if prior != "" {
		args = append(args, "--resume", prior)
	} else {
		e.fireVoid(ctx, hooks.EventSessionStart, map[string]any{
			"agent_id": req.Agent,
			"engine":   EngineClaude,
		})
	}

	cmd := exec.CommandContext(ctx, "claude", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("claude cli: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	var res cliResult
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil || res.Type != "result" {
		slog.Warn("agent: unparseable claude output", "agent", req.Agent, "error", err)
		return "", nil
	}
	if res.IsError {
		return "", fmt.Errorf("claude cli: %s", res.Result)
	}

	if err := e.sessions.Append(file, "user", req.Message); err != nil {
		slog.Warn("agent: persist user turn", "error", err)
	}
	if err := e.sessions.Append(file, "assistant", res.Result); err != nil {
		slog.Warn("agent: persist assistant turn", "error", err)
	}
	if res.SessionID != "" {
		if err := e.sessions.MetaUpdate(file, "cc_session_id", res.SessionID); err != nil {
			slog.Warn("agent: persist cc_session_id", "error", err)
		}
	}
	e.appendUsage(usageRecord{
		Agent:        req.Agent,
		Engine:       EngineClaude,
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		CostUSD:      res.TotalCostUSD,
	})
	return res.Result, nil
}
