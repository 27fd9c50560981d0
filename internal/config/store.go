// Package config implements the cached JSON configuration tree.
//
// The file is parsed with json5 (tolerant of comments and trailing commas),
// cached in memory behind an RWMutex, and written back atomically via a temp
// file + rename. String values may reference environment variables as
// ${NAME}; references are substituted on read, with undefined variables
// replaced by the empty string.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/titanous/json5"
)

// Store is the cached configuration document.
type Store struct {
	path string
	mu   sync.RWMutex
	tree map[string]any
}

// DefaultTree returns the seed configuration written by InitDefault.
func DefaultTree() map[string]any {
	return map[string]any{
		"agents": map[string]any{
			"defaults": map[string]any{
				"engine":   "builtin",
				"provider": "anthropic",
				"model":    "claude-sonnet-4-5",
				"maxTurns": float64(50),
			},
			"list": []any{
				map[string]any{"id": "main"},
			},
		},
		"channels": map[string]any{},
		"session": map[string]any{
			"scope": "per-sender",
		},
		"gateway": map[string]any{
			"port": float64(18900),
		},
	}
}

// Open loads the config at path, or starts from defaults when the file does
// not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, tree: DefaultTree()}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the config file location.
func (s *Store) Path() string { return s.path }

// InitDefault writes the default config to disk unless a file already exists.
func (s *Store) InitDefault() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	}
	s.mu.Lock()
	s.tree = DefaultTree()
	s.mu.Unlock()
	return s.write()
}

// Load reads and parses the file, replacing the cache. A missing file leaves
// the defaults in place.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", s.path, err)
	}
	tree := map[string]any{}
	if err := json5.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("config: parse %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.tree = tree
	s.mu.Unlock()
	return nil
}

// Reload discards the cache and re-reads the file.
func (s *Store) Reload() error { return s.Load() }

// Get resolves a dotted path ("gateway.auth.token") against the tree.
// String values get environment references substituted. The second return is
// false when the path does not exist.
func (s *Store) Get(path string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := lookup(s.tree, path)
	if !ok {
		return nil, false
	}
	return substituteValue(v), true
}

// GetOr returns the value at path or def when absent.
func (s *Store) GetOr(path string, def any) any {
	if v, ok := s.Get(path); ok {
		return v
	}
	return def
}

// GetString returns the string at path, or def when absent or not a string.
func (s *Store) GetString(path, def string) string {
	if v, ok := s.Get(path); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return def
}

// GetInt returns the value at path as an int. JSON numbers arrive as float64.
func (s *Store) GetInt(path string, def int) int {
	if v, ok := s.Get(path); ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// GetBool returns the boolean at path, or def.
func (s *Store) GetBool(path string, def bool) bool {
	if v, ok := s.Get(path); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// GetStrings returns the value at path as a string slice; non-string
// elements are skipped.
func (s *Store) GetStrings(path string) []string {
	v, ok := s.Get(path)
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if str, ok := e.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// Set writes value at the dotted path, creating intermediate objects, then
// persists the tree atomically and swaps the cache.
func (s *Store) Set(path string, value any) error {
	if path == "" {
		return fmt.Errorf("config: empty path")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	parts := strings.Split(path, ".")
	node := s.tree
	for _, p := range parts[:len(parts)-1] {
		next, ok := node[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[p] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = normalize(value)
	return s.writeLocked()
}

// Backup rotates <path>.bak.N copies, newest as .bak.1.
func (s *Store) Backup() error {
	const keep = 5
	for n := keep - 1; n >= 1; n-- {
		src := fmt.Sprintf("%s.bak.%d", s.path, n)
		if _, err := os.Stat(src); err == nil {
			os.Rename(src, fmt.Sprintf("%s.bak.%d", s.path, n+1))
		}
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: backup read: %w", err)
	}
	return os.WriteFile(s.path+".bak.1", data, 0o600)
}

// AgentGet looks up a field for an agent: agents.list entry with matching id,
// then agents.defaults, then def.
func (s *Store) AgentGet(agentID, field string, def any) any {
	s.mu.RLock()
	list, _ := lookup(s.tree, "agents.list")
	s.mu.RUnlock()

	if entries, ok := list.([]any); ok {
		for _, e := range entries {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			if id, _ := m["id"].(string); id == agentID {
				if v, ok := lookup(m, field); ok {
					return substituteValue(v)
				}
				break
			}
		}
	}
	if v, ok := s.Get("agents.defaults." + field); ok {
		return v
	}
	return def
}

// AgentGetString is AgentGet narrowed to string values.
func (s *Store) AgentGetString(agentID, field, def string) string {
	if v, ok := s.AgentGet(agentID, field, nil).(string); ok {
		return v
	}
	return def
}

// AgentGetInt is AgentGet narrowed to integer values.
func (s *Store) AgentGetInt(agentID, field string, def int) int {
	switch n := s.AgentGet(agentID, field, nil).(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return def
}

// ChannelGet looks up channels.<name>.<field>, then channels.defaults.<field>,
// then def.
func (s *Store) ChannelGet(channel, field string, def any) any {
	if v, ok := s.Get("channels." + channel + "." + field); ok {
		return v
	}
	if v, ok := s.Get("channels.defaults." + field); ok {
		return v
	}
	return def
}

// AgentIDs returns the configured agent ids in list order.
func (s *Store) AgentIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list, _ := lookup(s.tree, "agents.list")
	entries, ok := list.([]any)
	if !ok {
		return nil
	}
	var ids []string
	for _, e := range entries {
		if m, ok := e.(map[string]any); ok {
			if id, _ := m["id"].(string); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Tree returns a deep copy of the current tree (for the gateway config
// surface). Secret-looking leaves are masked when mask is true.
func (s *Store) Tree(mask bool) map[string]any {
	s.mu.RLock()
	data, _ := json.Marshal(s.tree)
	s.mu.RUnlock()
	cp := map[string]any{}
	json.Unmarshal(data, &cp)
	if mask {
		maskSecrets(cp)
	}
	return cp
}

// Watch reloads the config whenever the file changes on disk, until ctx is
// cancelled. Errors during reload are logged and the old cache kept.
func (s *Store) Watch(done <-chan struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("config: watch %s: %w", s.path, err)
	}
	go func() {
		defer w.Close()
		for {
			select {
			case <-done:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != s.path || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if err := s.Reload(); err != nil {
					slog.Warn("config reload failed, keeping cached tree", "error", err)
				} else {
					slog.Info("config reloaded", "path", s.path)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (s *Store) write() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked()
}

// writeLocked persists the tree via temp file + rename. Caller holds mu.
func (s *Store) writeLocked() error {
	data, err := json.MarshalIndent(s.tree, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("config: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// EnvSubstitute replaces every ${NAME} with the environment value. Undefined
// variables substitute to the empty string, never an error.
func EnvSubstitute(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		name := m[2 : len(m)-1]
		return os.Getenv(name)
	})
}

// substituteValue applies EnvSubstitute to string leaves, copying containers
// so the cached tree is never mutated.
func substituteValue(v any) any {
	switch t := v.(type) {
	case string:
		return EnvSubstitute(t)
	case map[string]any:
		cp := make(map[string]any, len(t))
		for k, e := range t {
			cp[k] = substituteValue(e)
		}
		return cp
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = substituteValue(e)
		}
		return cp
	default:
		return v
	}
}

// lookup walks a dotted path through nested objects.
func lookup(node map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = node
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// normalize round-trips value through JSON so the tree only ever holds
// map[string]any / []any / float64 / string / bool / nil.
func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

var secretKey = regexp.MustCompile(`(?i)^(token|api_?key|secret|password)$`)

func maskSecrets(node map[string]any) {
	for k, v := range node {
		switch t := v.(type) {
		case string:
			if secretKey.MatchString(k) && t != "" {
				node[k] = "***"
			}
		case map[string]any:
			maskSecrets(t)
		case []any:
			for _, e := range t {
				if m, ok := e.(map[string]any); ok {
					maskSecrets(m)
				}
			}
		}
	}
}
