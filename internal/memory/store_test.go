package memory

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bashclaw/bashclaw/internal/util"
)

func newTestMemory(t *testing.T) *Store {
	t.Helper()
	base := t.TempDir()
	return NewStore(filepath.Join(base, "memory"), filepath.Join(base, "agents"))
}

func TestSafeKeyRoundTrip(t *testing.T) {
	keys := []string{
		"plain-key_1.2",
		"user:alice@example.com",
		"path/with/slashes",
		"spaces and %percent%",
		"ünïcode",
	}
	for _, k := range keys {
		safe := SafeKey(k)
		for i := 0; i < len(safe); i++ {
			c := safe[i]
			if !(safeByte(c) || c == '%') {
				t.Errorf("SafeKey(%q) contains unsafe byte %q", k, c)
			}
		}
		if got := UnsafeKey(safe); got != k {
			t.Errorf("UnsafeKey(SafeKey(%q)) = %q", k, got)
		}
	}
}

func TestSetGetDelete(t *testing.T) {
	s := newTestMemory(t)

	if err := s.Set("lang", "the user prefers Go", []string{"prefs"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	e, err := s.Get("lang")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Value != "the user prefers Go" {
		t.Errorf("value = %q", e.Value)
	}
	if e.AccessCount != 1 {
		t.Errorf("access count = %d, want 1", e.AccessCount)
	}

	// Update preserves created_at.
	created := e.CreatedAt
	if err := s.Set("lang", "prefers Go and Rust", nil); err != nil {
		t.Fatal(err)
	}
	e, _ = s.Get("lang")
	if e.CreatedAt != created {
		t.Errorf("created_at changed on update: %q vs %q", e.CreatedAt, created)
	}

	if err := s.Delete("lang"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get("lang"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete("lang"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("double delete = %v, want ErrNotFound", err)
	}
}

func TestEmptyKeyAndQueryRejected(t *testing.T) {
	s := newTestMemory(t)
	if err := s.Set("", "x", nil); !errors.Is(err, util.ErrValidation) {
		t.Errorf("Set empty key = %v", err)
	}
	if _, err := s.Get("  "); !errors.Is(err, util.ErrValidation) {
		t.Errorf("Get blank key = %v", err)
	}
	if _, err := s.Search(""); !errors.Is(err, util.ErrValidation) {
		t.Errorf("Search empty = %v", err)
	}
	if _, err := s.SearchText("  ", 5); !errors.Is(err, util.ErrValidation) {
		t.Errorf("SearchText blank = %v", err)
	}
}

func TestSearchSubstring(t *testing.T) {
	s := newTestMemory(t)
	s.Set("food", "likes ramen", nil)
	s.Set("drink", "prefers oolong tea", nil)

	hits, err := s.Search("RAMEN")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Key != "food" {
		t.Errorf("Search = %+v, want the food entry", hits)
	}
}

func TestSearchTextScoring(t *testing.T) {
	s := newTestMemory(t)
	s.Set("deploy notes", "use the deploy script", []string{"ops"})
	s.Set("lunch", "deploy is also a word here", nil)
	s.Set("unrelated", "nothing to see", nil)

	results, err := s.SearchText("deploy", 10)
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results: %+v", len(results), results)
	}
	// Key-token match scores 2 + value match 1 = 3; value-only match = 1.
	if results[0].Key != "deploy notes" || results[0].Score != 3 {
		t.Errorf("best hit = %+v, want deploy notes at score 3", results[0])
	}
	if results[1].Key != "lunch" || results[1].Score != 1 {
		t.Errorf("second hit = %+v", results[1])
	}

	tagged, _ := s.SearchText("ops", 10)
	if len(tagged) != 1 || tagged[0].Score != 0.5 {
		t.Errorf("tag-only match = %+v, want score 0.5", tagged)
	}
}

func TestListLimit(t *testing.T) {
	s := newTestMemory(t)
	s.Set("b", "2", nil)
	s.Set("a", "1", nil)
	s.Set("c", "3", nil)

	all, err := s.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Key != "a" {
		t.Errorf("List(0) = %+v, want 3 sorted entries", all)
	}
	two, _ := s.List(2)
	if len(two) != 2 {
		t.Errorf("List(2) returned %d", len(two))
	}
}

func TestExportImportLastWins(t *testing.T) {
	s := newTestMemory(t)
	s.Set("k1", "v1", nil)
	s.Set("k2", "v2", []string{"t"})

	data, err := s.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("export is not a JSON array: %v", err)
	}

	// Duplicate key in the import file: the later value must win.
	entries = append(entries, Entry{Key: "k1", Value: "override"})
	dump, _ := json.Marshal(entries)
	file := filepath.Join(t.TempDir(), "dump.json")
	os.WriteFile(file, dump, 0o600)

	dst := newTestMemory(t)
	n, err := dst.Import(file)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 3 {
		t.Errorf("imported %d, want 3", n)
	}
	e, err := dst.Get("k1")
	if err != nil || e.Value != "override" {
		t.Errorf("k1 after import = %+v, %v; want the later value", e, err)
	}
}

func TestCompactDropsUnreadable(t *testing.T) {
	s := newTestMemory(t)
	s.Set("good", "keep me", nil)
	os.WriteFile(filepath.Join(s.dir, "broken.json"), []byte("{nope"), 0o600)

	removed, err := s.Compact()
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := s.Get("good"); err != nil {
		t.Errorf("good entry lost: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.dir, "broken.json")); !os.IsNotExist(err) {
		t.Error("broken file should be gone")
	}
}

func TestSplitSections(t *testing.T) {
	md := "preamble text\n## Projects\nworking on the gateway\n## People\nalice runs infra\n"
	secs := SplitSections(md)
	if len(secs) != 3 {
		t.Fatalf("got %d sections: %+v", len(secs), secs)
	}
	if secs[0].Title != "" || secs[0].Body != "preamble text" {
		t.Errorf("preamble = %+v", secs[0])
	}
	if secs[1].Title != "Projects" || secs[2].Title != "People" {
		t.Errorf("titles = %q, %q", secs[1].Title, secs[2].Title)
	}
}

func TestSearchWorkspaceAndSearchAll(t *testing.T) {
	s := newTestMemory(t)
	dir := filepath.Join(s.agentsDir, "main")
	os.MkdirAll(dir, 0o755)
	os.WriteFile(filepath.Join(dir, "MEMORY.md"),
		[]byte("## Gateway\nthe gateway listens on 18900\n## Misc\nnothing here\n"), 0o644)

	ws, err := s.SearchWorkspace("gateway", "main")
	if err != nil {
		t.Fatalf("SearchWorkspace: %v", err)
	}
	if len(ws) != 1 || ws[0].Section != "Gateway" || ws[0].Source != "workspace" {
		t.Fatalf("workspace results = %+v", ws)
	}

	// Index file is rebuilt by the search.
	if _, err := os.Stat(filepath.Join(s.dir, indexFile)); err != nil {
		t.Errorf("workspace index missing: %v", err)
	}

	s.Set("gateway token", "gateway secret lives in env", nil)
	all, err := s.SearchAll("gateway", "main", 10)
	if err != nil {
		t.Fatalf("SearchAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("SearchAll = %+v", all)
	}
	for i := 1; i < len(all); i++ {
		if all[i].Score > all[i-1].Score {
			t.Errorf("results not sorted by score: %+v", all)
		}
	}
}
