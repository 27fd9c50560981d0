package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func runShell(t *testing.T, args map[string]any) (string, int, *Result) {
	t.Helper()
	res := NewShellTool().Execute(context.Background(), args)
	var out struct {
		Output   string `json:"output"`
		ExitCode int    `json:"exitCode"`
	}
	if err := json.Unmarshal([]byte(res.ForLLM), &out); err != nil {
		t.Fatalf("result is not JSON: %q (%v)", res.ForLLM, err)
	}
	return out.Output, out.ExitCode, res
}

func TestShellRunsCommand(t *testing.T) {
	out, code, res := runShell(t, map[string]any{"command": "echo hello"})
	if code != 0 || res.IsError {
		t.Fatalf("exit = %d, err = %v", code, res.IsError)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("output = %q", out)
	}
}

func TestShellNonZeroExit(t *testing.T) {
	_, code, res := runShell(t, map[string]any{"command": "exit 3"})
	if code != 3 {
		t.Errorf("exit = %d, want 3", code)
	}
	if !res.IsError {
		t.Error("non-zero exit should mark the result as error")
	}
}

func TestShellTimeoutExits124(t *testing.T) {
	_, code, _ := runShell(t, map[string]any{"command": "sleep 5", "timeout": 0.2})
	if code != timeoutExitCode {
		t.Errorf("exit = %d, want %d on timeout", code, timeoutExitCode)
	}
}

func TestShellDenylist(t *testing.T) {
	blocked := []string{
		"rm -rf /",
		"rm -r -f /",
		"mkfs.ext4 /dev/sda1",
		"dd if=/dev/zero of=/dev/sda",
		"echo x > /dev/sda1",
	}
	for _, cmd := range blocked {
		res := NewShellTool().Execute(context.Background(), map[string]any{"command": cmd})
		if !res.IsError || !strings.Contains(res.ForLLM, "blocked") {
			t.Errorf("command %q should be blocked, got %+v", cmd, res)
		}
	}

	allowed := []string{"rm -rf ./build", "ls /", "echo dd if= is just text? no"}
	for _, cmd := range allowed[:2] {
		res := NewShellTool().Execute(context.Background(), map[string]any{"command": cmd})
		if strings.Contains(res.ForLLM, "blocked") {
			t.Errorf("command %q should not be blocked", cmd)
		}
	}
}

func TestShellCwd(t *testing.T) {
	dir := t.TempDir()
	out, code, _ := runShell(t, map[string]any{"command": "pwd", "cwd": dir})
	if code != 0 || !strings.Contains(out, dir) {
		t.Errorf("pwd in cwd %s = %q (exit %d)", dir, out, code)
	}
}

func TestShellOutputCapped(t *testing.T) {
	out, _, _ := runShell(t, map[string]any{
		"command": "head -c 300000 /dev/zero | tr '\\0' 'x'",
	})
	if len(out) > maxShellOutput+64 {
		t.Errorf("output not capped: %d bytes", len(out))
	}
	if !strings.Contains(out, "[output truncated]") {
		t.Error("missing truncation marker")
	}
}
