// Package autoreply implements fixed-string reply rules that short-circuit
// the agent engine. Patterns are literals, never regular expressions; "|"
// splits a pattern into alternative literals.
package autoreply

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

// Rule is one autoreply rule.
type Rule struct {
	ID       string `json:"id"`
	Pattern  string `json:"pattern"` // literal alternatives separated by "|"
	Response string `json:"response"`
	Priority int    `json:"priority"` // lower fires first
	Channel  string `json:"channel,omitempty"`
	Enabled  bool   `json:"enabled"`
}

// Store persists rules in a single JSON file.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) load() ([]Rule, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("autoreply: read: %w", err)
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("autoreply: parse: %w", err)
	}
	return rules, nil
}

func (s *Store) save(rules []Rule) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".autoreply-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Add validates and appends one rule.
func (s *Store) Add(rule Rule) error {
	if strings.TrimSpace(rule.Pattern) == "" {
		return fmt.Errorf("autoreply: empty pattern: %w", util.ErrValidation)
	}
	if rule.ID == "" {
		rule.ID = util.NewID()
	}
	rule.Enabled = true

	s.mu.Lock()
	defer s.mu.Unlock()
	rules, err := s.load()
	if err != nil {
		return err
	}
	rules = append(rules, rule)
	return s.save(rules)
}

// Remove drops the rule with the given id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rules, err := s.load()
	if err != nil {
		return err
	}
	kept := rules[:0]
	found := false
	for _, r := range rules {
		if r.ID == id {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return fmt.Errorf("autoreply: rule %s: %w", id, util.ErrNotFound)
	}
	return s.save(kept)
}

// List returns all rules sorted by ascending priority.
func (s *Store) List() ([]Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rules, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })
	return rules, nil
}

// matches reports whether any "|"-separated literal of pattern occurs in
// msg. Comparison is case-insensitive; regex metacharacters carry no
// meaning.
func matches(pattern, msg string) bool {
	if msg == "" {
		return false
	}
	lowered := strings.ToLower(msg)
	for _, alt := range strings.Split(pattern, "|") {
		alt = strings.TrimSpace(strings.ToLower(alt))
		if alt == "" {
			continue
		}
		if strings.Contains(lowered, alt) {
			return true
		}
	}
	return false
}

// Check returns the response of the lowest-priority enabled rule whose
// pattern literally occurs in msg, restricted to rules bound to channel (or
// to no channel). ok is false when nothing matched.
func (s *Store) Check(msg, channel string) (response string, ok bool) {
	if strings.TrimSpace(msg) == "" {
		return "", false
	}
	rules, err := s.List()
	if err != nil {
		return "", false
	}
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if r.Channel != "" && r.Channel != channel {
			continue
		}
		if matches(r.Pattern, msg) {
			return r.Response, true
		}
	}
	return "", false
}
