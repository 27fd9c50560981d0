package tools

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/bashclaw/bashclaw/internal/memory"
	"github.com/bashclaw/bashclaw/internal/sessions"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	base := t.TempDir()
	r := NewRegistry()
	r.Register(NewShellTool())
	r.Register(NewWebFetchTool())
	r.Register(NewWebSearchTool())
	r.Register(NewMemoryTool(memory.NewStore(filepath.Join(base, "memory"), filepath.Join(base, "agents"))))
	r.Register(NewReadFileTool())
	r.Register(NewWriteFileTool())
	r.Register(NewSessionStatusTool(sessions.NewStore(filepath.Join(base, "sessions"), "")))
	return r
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "bogus", "{}")
	if !res.IsError {
		t.Fatal("unknown tool must be an error result")
	}
	if res.ForLLM != `{"error":"unknown tool: bogus"}` {
		t.Errorf("payload = %q", res.ForLLM)
	}
}

func TestExecuteValidatesInputSchema(t *testing.T) {
	r := newTestRegistry(t)

	// shell requires "command"; wrong type must be rejected before the handler.
	res := r.Execute(context.Background(), "shell", `{"command": 42}`)
	if !res.IsError || !strings.Contains(res.ForLLM, "invalid input") {
		t.Errorf("schema violation not caught: %+v", res)
	}

	res = r.Execute(context.Background(), "shell", `{not json`)
	if !res.IsError || !strings.Contains(res.ForLLM, "invalid tool input") {
		t.Errorf("bad JSON not caught: %+v", res)
	}
}

func TestIsAvailable(t *testing.T) {
	tests := []struct {
		name  string
		allow []string
		deny  []string
		want  bool
	}{
		{"shell", nil, nil, true},
		{"shell", []string{"shell"}, nil, true},
		{"shell", []string{"memory"}, nil, false},
		{"shell", nil, []string{"shell"}, false},
		{"shell", []string{"shell"}, []string{"shell"}, false}, // deny wins last
	}
	for _, tt := range tests {
		if got := IsAvailable(tt.name, tt.allow, tt.deny); got != tt.want {
			t.Errorf("IsAvailable(%q, %v, %v) = %v", tt.name, tt.allow, tt.deny, got)
		}
	}
}

func TestFilterProfiles(t *testing.T) {
	r := newTestRegistry(t)

	full := r.Filter("full", nil, nil)
	if len(full) != len(r.Names()) {
		t.Errorf("full profile filtered something: %v", full)
	}

	minimal := r.Filter("minimal", nil, nil)
	want := []string{"memory", "session_status", "web_fetch", "web_search"}
	if !reflect.DeepEqual(minimal, want) {
		t.Errorf("minimal = %v, want %v", minimal, want)
	}

	coding := r.Filter("coding", nil, nil)
	for _, name := range []string{"shell", "read_file", "write_file", "memory"} {
		if !contains(coding, name) {
			t.Errorf("coding profile missing %s: %v", name, coding)
		}
	}

	// Allow extends a restrictive profile (most permissive union)...
	extended := r.Filter("minimal", []string{"shell"}, nil)
	if !contains(extended, "shell") || !contains(extended, "memory") {
		t.Errorf("allow should extend minimal: %v", extended)
	}

	// ...and deny is subtracted last.
	denied := r.Filter("coding", []string{"shell"}, []string{"shell"})
	if contains(denied, "shell") {
		t.Errorf("deny must win over profile+allow: %v", denied)
	}
}

func TestBuildSpecs(t *testing.T) {
	r := newTestRegistry(t)
	specs := r.BuildSpecs("minimal", nil, nil)
	if len(specs) != 4 {
		t.Fatalf("got %d specs", len(specs))
	}
	for _, s := range specs {
		if s.Name == "" || s.Description == "" || s.InputSchema == nil {
			t.Errorf("incomplete spec: %+v", s)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
