package sessions

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bashclaw/bashclaw/internal/providers"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), ScopePerSender)
}

func readLines(t *testing.T, file string) []string {
	t.Helper()
	f, err := os.Open(file)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			lines = append(lines, sc.Text())
		}
	}
	return lines
}

func TestAppendWritesHeaderOnce(t *testing.T) {
	s := newTestStore(t)
	file := s.FilePath("main", "web", "alice")

	for i := 0; i < 3; i++ {
		if err := s.Append(file, "user", "hello"); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	lines := readLines(t, file)
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header + 3 entries", len(lines))
	}

	var h Header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("header parse: %v", err)
	}
	if h.Type != "session" || h.Version != "1" || h.Engine != "bashclaw" {
		t.Errorf("bad header: %+v", h)
	}
	if h.ID == "" || h.Timestamp == "" {
		t.Errorf("header missing id/timestamp: %+v", h)
	}

	if got := s.Count(file); got != 3 {
		t.Errorf("Count = %d, want 3 (total lines - header)", got)
	}
}

func TestLoadSkipsHeaderAndMalformed(t *testing.T) {
	s := newTestStore(t)
	file := s.FilePath("main", "web", "bob")

	s.Append(file, "user", "one")
	s.Append(file, "assistant", "two")

	// Inject a malformed line and a null-role line by hand.
	f, _ := os.OpenFile(file, os.O_APPEND|os.O_WRONLY, 0o600)
	f.WriteString("{not json\n")
	f.WriteString(`{"content":"no role","ts":1}` + "\n")
	f.Close()

	s.Append(file, "user", "three")

	entries, err := s.Load(file, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"one", "two", "three"}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, w := range want {
		if entries[i].Content != w {
			t.Errorf("entry %d = %q, want %q (order must be append order)", i, entries[i].Content, w)
		}
	}
}

func TestLoadMaxLinesKeepsNewest(t *testing.T) {
	s := newTestStore(t)
	file := s.FilePath("main", "web", "c")
	for _, m := range []string{"a", "b", "c", "d"} {
		s.Append(file, "user", m)
	}
	entries, _ := s.Load(file, 2)
	if len(entries) != 2 || entries[0].Content != "c" || entries[1].Content != "d" {
		t.Errorf("Load(max=2) = %+v, want newest two", entries)
	}
}

func TestPruneKeepsHeaderAndNewest(t *testing.T) {
	s := newTestStore(t)
	file := s.FilePath("main", "web", "d")
	for _, m := range []string{"1", "2", "3", "4", "5"} {
		s.Append(file, "user", m)
	}

	if err := s.Prune(file, 2); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if got := s.Count(file); got != 2 {
		t.Errorf("Count after prune = %d, want 2", got)
	}

	lines := readLines(t, file)
	var h Header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil || h.Type != "session" {
		t.Errorf("header lost after prune: %q", lines[0])
	}
	entries, _ := s.Load(file, 0)
	if entries[0].Content != "4" || entries[1].Content != "5" {
		t.Errorf("prune kept %+v, want newest entries verbatim", entries)
	}
}

func TestClearAndDelete(t *testing.T) {
	s := newTestStore(t)
	file := s.FilePath("main", "web", "e")
	s.Append(file, "user", "x")
	s.MetaUpdate(file, "cc_session_id", "abc")

	if err := s.Clear(file); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	info, _ := os.Stat(file)
	if info.Size() != 0 {
		t.Errorf("Clear should truncate to zero bytes, size = %d", info.Size())
	}

	// Header comes back on the next append.
	s.Append(file, "user", "y")
	lines := readLines(t, file)
	if len(lines) != 2 {
		t.Fatalf("after clear+append got %d lines", len(lines))
	}

	if err := s.Delete(file); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Error("session file should be gone")
	}
	if _, err := os.Stat(file + ".meta.json"); !os.IsNotExist(err) {
		t.Error("meta sidecar should be gone")
	}
}

func TestFilePathScopes(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		scope string
		want  string
	}{
		{ScopeGlobal, filepath.Join(root, "main.jsonl")},
		{ScopePerChannel, filepath.Join(root, "main", "telegram.jsonl")},
		{ScopePerSender, filepath.Join(root, "main", "telegram", "alice.jsonl")},
		{ScopePerChannelPeer, filepath.Join(root, "main", "telegram", "alice.jsonl")},
	}
	for _, tt := range tests {
		s := NewStore(root, tt.scope)
		if got := s.FilePath("main", "telegram", "alice"); got != tt.want {
			t.Errorf("scope %s: FilePath = %q, want %q", tt.scope, got, tt.want)
		}
	}
}

func TestFilePathSanitizesComponents(t *testing.T) {
	s := newTestStore(t)
	got := s.FilePath("ma/in", "tele gram", "a:b")
	if strings.Contains(got, "ma/in") || strings.Contains(got, " ") || strings.Contains(got, ":") {
		t.Errorf("unsafe path: %q", got)
	}
}

func TestCheckIdleReset(t *testing.T) {
	s := newTestStore(t)
	file := s.FilePath("main", "web", "idle")

	old := Entry{Role: "user", Content: "stale", Ts: time.Now().Add(-2 * time.Hour).UnixMilli()}
	if err := s.AppendEntry(file, old); err != nil {
		t.Fatal(err)
	}

	if !s.CheckIdleReset(file, 30) {
		t.Fatal("expected idle reset for 2h-old session with 30m threshold")
	}
	if got := s.Count(file); got != 0 {
		t.Errorf("Count after reset = %d", got)
	}

	// Fresh session: no reset.
	s.Append(file, "user", "fresh")
	if s.CheckIdleReset(file, 30) {
		t.Error("fresh session must not reset")
	}
	// Empty/missing file: no reset.
	if s.CheckIdleReset(s.FilePath("main", "web", "nobody"), 30) {
		t.Error("missing session must not reset")
	}
}

func TestDetectOverflow(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"canonical", `{"error":{"message":"request_too_large: reduce prompt"}}`, true},
		{"other error", `{"error":{"message":"rate_limited"}}`, false},
		{"malformed json", `{oops`, false},
		{"empty", ``, false},
		{"no error key", `{"ok":true}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectOverflow(tt.body); got != tt.want {
				t.Errorf("DetectOverflow(%q) = %v, want %v", tt.body, got, tt.want)
			}
		})
	}
}

func TestCompactReplacesOlderHalf(t *testing.T) {
	s := newTestStore(t)
	file := s.FilePath("main", "web", "compact")
	for _, m := range []string{"m1", "m2", "m3", "m4"} {
		s.Append(file, "user", m)
	}

	mock := providers.NewMockProvider(providers.MockText("the early chat covered m1 and m2"))
	if err := s.Compact(context.Background(), file, mock, "mock-model"); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	entries, _ := s.Load(file, 0)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want summary + newest half", len(entries))
	}
	if entries[0].Role != "system" || !strings.HasPrefix(entries[0].Content, "[Compacted summary]") {
		t.Errorf("first entry = %+v, want compacted system summary", entries[0])
	}
	if entries[1].Content != "m3" || entries[2].Content != "m4" {
		t.Errorf("newest half changed: %+v", entries[1:])
	}
}

func TestMetaUpdateGet(t *testing.T) {
	s := newTestStore(t)
	file := s.FilePath("main", "web", "meta")
	s.Append(file, "user", "x")

	if err := s.MetaUpdate(file, "cc_session_id", "sess-1"); err != nil {
		t.Fatalf("MetaUpdate: %v", err)
	}
	if err := s.MetaUpdate(file, "turns", 7); err != nil {
		t.Fatalf("MetaUpdate: %v", err)
	}

	if got := s.MetaGetString(file, "cc_session_id", ""); got != "sess-1" {
		t.Errorf("cc_session_id = %q", got)
	}
	if got := s.MetaGet(file, "turns", nil).(float64); got != 7 {
		t.Errorf("turns = %v", got)
	}
	if got := s.MetaGet(file, "missing", "def"); got != "def" {
		t.Errorf("missing field = %v, want default", got)
	}
}
