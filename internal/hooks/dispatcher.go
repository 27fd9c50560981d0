// Package hooks implements the event hook dispatcher. Hooks are external
// executables registered for runtime events; depending on strategy their
// stdout feeds the next hook (modifying), is discarded (void), or their exit
// code gates the operation (blocking).
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bashclaw/bashclaw/internal/util"
)

const scriptTimeout = 30 * time.Second

// Strategies.
const (
	StrategyModifying = "modifying"
	StrategyVoid      = "void"
	StrategyBlocking  = "blocking"
)

// Events (closed set).
const (
	EventSessionStart     = "session_start"
	EventBeforeAgentStart = "before_agent_start"
	EventPreMessage       = "pre_message"
	EventPostMessage      = "post_message"
	EventAgentEnd         = "agent_end"
	EventPreTool          = "pre_tool"
	EventPostTool         = "post_tool"
	EventOnError          = "on_error"
	EventPreCompact       = "pre_compact"
	EventPostToolUse      = "post_tool_use"
)

var defaultStrategies = map[string]string{
	EventSessionStart:     StrategyVoid,
	EventBeforeAgentStart: StrategyVoid,
	EventPreMessage:       StrategyModifying,
	EventPostMessage:      StrategyVoid,
	EventAgentEnd:         StrategyVoid,
	EventPreTool:          StrategyModifying,
	EventPostTool:         StrategyVoid,
	EventOnError:          StrategyBlocking,
	EventPreCompact:       StrategyModifying,
	EventPostToolUse:      StrategyVoid,
}

// ValidEvent reports membership in the closed event set.
func ValidEvent(event string) bool {
	_, ok := defaultStrategies[event]
	return ok
}

// Hook is one registered hook, persisted as hooks/<name>.json.
type Hook struct {
	Name     string `json:"name"`
	Event    string `json:"event"`
	Script   string `json:"script"`
	Enabled  bool   `json:"enabled"`
	Priority int    `json:"priority"`
	Strategy string `json:"strategy"`
}

// Dispatcher manages hook registration and event dispatch.
type Dispatcher struct {
	dir string

	mu    sync.RWMutex
	hooks map[string]Hook
}

// NewDispatcher loads any persisted hooks from dir.
func NewDispatcher(dir string) *Dispatcher {
	d := &Dispatcher{dir: dir, hooks: map[string]Hook{}}
	items, err := os.ReadDir(dir)
	if err != nil {
		return d
	}
	for _, it := range items {
		if it.IsDir() || !strings.HasSuffix(it.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, it.Name()))
		if err != nil {
			continue
		}
		var h Hook
		if err := json.Unmarshal(data, &h); err != nil || h.Name == "" || !ValidEvent(h.Event) {
			slog.Warn("hooks: skipping bad definition", "file", it.Name())
			continue
		}
		d.hooks[h.Name] = h
	}
	return d
}

func (d *Dispatcher) persist(h Hook) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(d.dir, util.SanitizeSegment(h.Name)+".json"), data, 0o600)
}

// Register validates and stores a hook. The event must be in the closed set
// and the script must exist and be executable. An empty strategy takes the
// event's default.
func (d *Dispatcher) Register(h Hook) error {
	if h.Name == "" {
		return fmt.Errorf("hooks: empty name: %w", util.ErrValidation)
	}
	if !ValidEvent(h.Event) {
		return fmt.Errorf("hooks: unknown event %q: %w", h.Event, util.ErrValidation)
	}
	info, err := os.Stat(h.Script)
	if err != nil {
		return fmt.Errorf("hooks: script %s: %w", h.Script, util.ErrValidation)
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("hooks: script %s not executable: %w", h.Script, util.ErrValidation)
	}
	if h.Strategy == "" {
		h.Strategy = defaultStrategies[h.Event]
	}
	switch h.Strategy {
	case StrategyModifying, StrategyVoid, StrategyBlocking:
	default:
		return fmt.Errorf("hooks: unknown strategy %q: %w", h.Strategy, util.ErrValidation)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks[h.Name] = h
	return d.persist(h)
}

// List returns all hooks sorted by name.
func (d *Dispatcher) List() []Hook {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Hook, 0, len(d.hooks))
	for _, h := range d.hooks {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListByEvent returns the hooks for one event in ascending priority.
func (d *Dispatcher) ListByEvent(event string) []Hook {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Hook
	for _, h := range d.hooks {
		if h.Event == event {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Count returns how many hooks are registered for event.
func (d *Dispatcher) Count(event string) int {
	return len(d.ListByEvent(event))
}

// SetEnabled flips one hook.
func (d *Dispatcher) SetEnabled(name string, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.hooks[name]
	if !ok {
		return fmt.Errorf("hooks: %s: %w", name, util.ErrNotFound)
	}
	h.Enabled = enabled
	d.hooks[name] = h
	return d.persist(h)
}

// Remove deletes a hook and its definition file.
func (d *Dispatcher) Remove(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.hooks[name]; !ok {
		return fmt.Errorf("hooks: %s: %w", name, util.ErrNotFound)
	}
	delete(d.hooks, name)
	err := os.Remove(filepath.Join(d.dir, util.SanitizeSegment(name)+".json"))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func runScript(ctx context.Context, script, input string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, script)
	cmd.Stdin = strings.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Run dispatches an event through its enabled hooks in ascending priority.
//
// Per-hook strategy semantics:
//   - modifying: stdout (a JSON document) becomes the next hook's input and
//     the final return value; a failing hook is skipped and the chain
//     continues with the prior value
//   - void: fire-and-forget in the background, stdout ignored
//   - blocking: synchronous; a non-zero exit aborts the chain with an error
func (d *Dispatcher) Run(ctx context.Context, event, inputJSON string) (string, error) {
	current := inputJSON
	for _, h := range d.ListByEvent(event) {
		if !h.Enabled {
			continue
		}
		switch h.Strategy {
		case StrategyVoid:
			go func(h Hook, input string) {
				if _, err := runScript(context.Background(), h.Script, input); err != nil {
					slog.Warn("hooks: void hook failed", "hook", h.Name, "event", event, "error", err)
				}
			}(h, current)

		case StrategyBlocking:
			if _, err := runScript(ctx, h.Script, current); err != nil {
				slog.Error("hooks: blocking hook failed", "hook", h.Name, "event", event, "error", err)
				return current, fmt.Errorf("hooks: %s blocked %s: %w", h.Name, event, err)
			}

		case StrategyModifying:
			out, err := runScript(ctx, h.Script, current)
			if err != nil {
				slog.Warn("hooks: modifying hook failed, skipping", "hook", h.Name, "event", event, "error", err)
				continue
			}
			trimmed := strings.TrimSpace(out)
			if !json.Valid([]byte(trimmed)) {
				slog.Warn("hooks: modifying hook emitted invalid JSON, skipping", "hook", h.Name, "event", event)
				continue
			}
			current = trimmed
		}
	}
	return current, nil
}
