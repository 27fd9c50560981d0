// Package memory implements the long-term key/value store and the agent
// workspace memory search. Each entry lives in its own JSON file under the
// memory state directory so concurrent agents never contend on a single
// database file.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bashclaw/bashclaw/internal/util"
)

// Entry is one stored memory.
type Entry struct {
	Key         string   `json:"key"`
	Value       string   `json:"value"`
	Tags        []string `json:"tags,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
	AccessCount int      `json:"access_count"`
}

// Result is one scored hit from SearchText, SearchWorkspace or SearchAll.
type Result struct {
	Source  string   `json:"source"` // "memory" or "workspace"
	Key     string   `json:"key"`
	Value   string   `json:"value"`
	Tags    []string `json:"tags,omitempty"`
	Score   float64  `json:"score"`
	Agent   string   `json:"agent,omitempty"`
	Section string   `json:"section,omitempty"`
}

// Store is the file-backed memory store.
type Store struct {
	dir       string
	agentsDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store rooted at dir. agentsDir is the base directory
// holding per-agent workspaces (each with an optional MEMORY.md).
func NewStore(dir, agentsDir string) *Store {
	return &Store{dir: dir, agentsDir: agentsDir, locks: map[string]*sync.Mutex{}}
}

func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.locks[key]; ok {
		return m
	}
	m := &sync.Mutex{}
	s.locks[key] = m
	return m
}

const hexDigits = "0123456789abcdef"

func safeByte(b byte) bool {
	return b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9' ||
		b == '.' || b == '_' || b == '-'
}

// SafeKey encodes a memory key into a filename. Bytes outside [A-Za-z0-9._-]
// become %XX so the mapping is reversible via UnsafeKey.
func SafeKey(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		if safeByte(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

// UnsafeKey reverses SafeKey.
func UnsafeKey(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if name[i] == '%' && i+2 < len(name) {
			hi := strings.IndexByte(hexDigits, lower(name[i+1]))
			lo := strings.IndexByte(hexDigits, lower(name[i+2]))
			if hi >= 0 && lo >= 0 {
				b.WriteByte(byte(hi<<4 | lo))
				i += 2
				continue
			}
		}
		b.WriteByte(name[i])
	}
	return b.String()
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 'a' - 'A'
	}
	return b
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, SafeKey(key)+".json")
}

// Set stores value under key, preserving created_at across updates.
func (s *Store) Set(key, value string, tags []string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("memory: empty key: %w", util.ErrValidation)
	}
	mtx := s.keyLock(key)
	mtx.Lock()
	defer mtx.Unlock()

	now := util.NowISO()
	e := Entry{Key: key, Value: value, Tags: tags, CreatedAt: now, UpdatedAt: now}
	if prev, err := s.read(key); err == nil {
		e.CreatedAt = prev.CreatedAt
		e.AccessCount = prev.AccessCount
	}
	return s.write(e)
}

func (s *Store) write(e Entry) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("memory: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: marshal: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".mem-*.tmp")
	if err != nil {
		return fmt.Errorf("memory: temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("memory: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(e.Key))
}

func (s *Store) read(key string) (Entry, error) {
	var e Entry
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return e, fmt.Errorf("memory: %s: %w", key, util.ErrNotFound)
		}
		return e, fmt.Errorf("memory: read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("memory: parse %s: %w", key, err)
	}
	return e, nil
}

// Get returns the entry for key and bumps its access count. A missing key
// wraps util.ErrNotFound; a corrupt file does not.
func (s *Store) Get(key string) (Entry, error) {
	if strings.TrimSpace(key) == "" {
		return Entry{}, fmt.Errorf("memory: empty key: %w", util.ErrValidation)
	}
	mtx := s.keyLock(key)
	mtx.Lock()
	defer mtx.Unlock()

	e, err := s.read(key)
	if err != nil {
		return Entry{}, err
	}
	e.AccessCount++
	e.UpdatedAt = util.NowISO()
	// Access bookkeeping is best-effort.
	_ = s.write(e)
	return e, nil
}

// Delete removes key. Missing keys wrap util.ErrNotFound.
func (s *Store) Delete(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("memory: empty key: %w", util.ErrValidation)
	}
	mtx := s.keyLock(key)
	mtx.Lock()
	defer mtx.Unlock()
	if err := os.Remove(s.path(key)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("memory: %s: %w", key, util.ErrNotFound)
		}
		return fmt.Errorf("memory: delete %s: %w", key, err)
	}
	return nil
}

// List returns up to limit entries sorted by key. limit <= 0 means all.
func (s *Store) List(limit int) ([]Entry, error) {
	entries, err := s.loadAll(false)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// loadAll reads every entry file. dropBad controls whether unreadable files
// are deleted (used by Compact) or just skipped.
func (s *Store) loadAll(dropBad bool) ([]Entry, error) {
	items, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("memory: list: %w", err)
	}
	var entries []Entry
	for _, it := range items {
		name := it.Name()
		if it.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil || e.Key == "" {
			if dropBad {
				os.Remove(filepath.Join(s.dir, name))
			}
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Search returns entries whose key or value contains the substring,
// case-insensitive.
func (s *Store) Search(substr string) ([]Entry, error) {
	if strings.TrimSpace(substr) == "" {
		return nil, fmt.Errorf("memory: empty query: %w", util.ErrValidation)
	}
	entries, err := s.loadAll(false)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(substr)
	var hits []Entry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Key), q) || strings.Contains(strings.ToLower(e.Value), q) {
			hits = append(hits, e)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Key < hits[j].Key })
	return hits, nil
}

func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

func scoreEntry(queryTokens []string, e Entry) float64 {
	keyTok := tokens(e.Key)
	valTok := tokens(e.Value)
	tagSet := map[string]bool{}
	for _, t := range e.Tags {
		tagSet[strings.ToLower(t)] = true
	}

	var score float64
	for _, q := range queryTokens {
		for _, t := range valTok {
			if t == q {
				score += 1
			}
		}
		for _, t := range keyTok {
			if t == q {
				score += 2
			}
		}
		if tagSet[q] {
			score += 0.5
		}
	}
	return score
}

// SearchText runs tokenised scoring over all entries: 1 point per value-token
// match, 2 per key-token match, 0.5 per matching tag. Returns up to limit
// results, best first.
func (s *Store) SearchText(query string, limit int) ([]Result, error) {
	qt := tokens(query)
	if len(qt) == 0 {
		return nil, fmt.Errorf("memory: empty query: %w", util.ErrValidation)
	}
	entries, err := s.loadAll(false)
	if err != nil {
		return nil, err
	}
	var results []Result
	for _, e := range entries {
		score := scoreEntry(qt, e)
		if score <= 0 {
			continue
		}
		results = append(results, Result{
			Source: "memory",
			Key:    e.Key,
			Value:  e.Value,
			Tags:   e.Tags,
			Score:  score,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SearchAll merges KV and workspace results, best first.
func (s *Store) SearchAll(query, agent string, limit int) ([]Result, error) {
	kv, err := s.SearchText(query, 0)
	if err != nil {
		return nil, err
	}
	ws, err := s.SearchWorkspace(query, agent)
	if err != nil {
		return nil, err
	}
	all := append(kv, ws...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Export dumps all entries as a JSON array.
func (s *Store) Export() ([]byte, error) {
	entries, err := s.loadAll(false)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	if entries == nil {
		entries = []Entry{}
	}
	return json.MarshalIndent(entries, "", "  ")
}

// Import restores entries from an exported JSON array. Later occurrences of
// the same key win. Returns the number of entries written.
func (s *Store) Import(file string) (int, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return 0, fmt.Errorf("memory: import: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("memory: import parse: %w: %v", util.ErrValidation, err)
	}
	n := 0
	for _, e := range entries {
		if strings.TrimSpace(e.Key) == "" {
			continue
		}
		mtx := s.keyLock(e.Key)
		mtx.Lock()
		if e.CreatedAt == "" {
			e.CreatedAt = util.NowISO()
		}
		if e.UpdatedAt == "" {
			e.UpdatedAt = e.CreatedAt
		}
		err := s.write(e)
		mtx.Unlock()
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Compact deletes entry files that no longer parse. Returns how many were
// removed.
func (s *Store) Compact() (int, error) {
	before, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	total := 0
	for _, it := range before {
		if !it.IsDir() && strings.HasSuffix(it.Name(), ".json") && !strings.HasPrefix(it.Name(), ".") {
			total++
		}
	}
	entries, err := s.loadAll(true)
	if err != nil {
		return 0, err
	}
	return total - len(entries), nil
}
