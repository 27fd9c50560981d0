package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"time"
)

const (
	defaultShellTimeout = 30 * time.Second
	maxShellOutput      = 200 * 1024
	timeoutExitCode     = 124
)

// Destructive command patterns denied regardless of agent configuration.
var shellDenyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+(-\w+\s+)*-?\w*[rf]\w*\s+/(\s|$|\*)`),
	regexp.MustCompile(`\bmkfs\b`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`>\s*/dev/(sd|hd|nvme|vd)[a-z0-9]`),
}

// ShellTool runs a command through sh -c with a wall-clock timeout.
type ShellTool struct{}

func NewShellTool() *ShellTool { return &ShellTool{} }

func (t *ShellTool) Name() string { return "shell" }

func (t *ShellTool) Description() string {
	return "Run a shell command and return its combined output and exit code."
}

func (t *ShellTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string", "description": "Command to run via sh -c"},
			"timeout": map[string]any{"type": "number", "description": "Timeout in seconds (default 30)"},
			"cwd":     map[string]any{"type": "string", "description": "Working directory"},
		},
		"required": []any{"command"},
	}
}

func (t *ShellTool) Execute(ctx context.Context, args map[string]any) *Result {
	command, _ := args["command"].(string)
	if command == "" {
		return ErrorResult("command is required")
	}
	for _, pat := range shellDenyPatterns {
		if pat.MatchString(command) {
			slog.Warn("shell: denied command", "pattern", pat.String())
			return ErrorResult("command blocked by safety policy")
		}
	}

	timeout := defaultShellTimeout
	if secs, ok := args["timeout"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if cwd, ok := args["cwd"].(string); ok && cwd != "" {
		cmd.Dir = cwd
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			exitCode = timeoutExitCode
		case errors.As(err, &exitErr):
			exitCode = exitErr.ExitCode()
		default:
			return ErrorResult(fmt.Sprintf("shell: %v", err)).WithError(err)
		}
	}

	output := buf.String()
	if len(output) > maxShellOutput {
		output = output[:maxShellOutput] + "\n[output truncated]"
	}

	payload, _ := json.Marshal(map[string]any{
		"output":   output,
		"exitCode": exitCode,
	})
	res := NewResult(string(payload))
	res.IsError = exitCode != 0
	return res
}
