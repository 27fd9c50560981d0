// Package tools implements the built-in agent tools and the registry that
// filters them per agent and routes execution.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bashclaw/bashclaw/internal/providers"
)

// Tool is one callable capability exposed to the model.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Execute(ctx context.Context, args map[string]any) *Result
}

// Registry holds the registered tools and applies per-agent filtering.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	order   []string
	schemas map[string]*jsonschema.Schema
}

func NewRegistry() *Registry {
	return &Registry{
		tools:   map[string]Tool{},
		schemas: map[string]*jsonschema.Schema{},
	}
}

// Register adds a tool, replacing any previous registration of the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
	delete(r.schemas, name)
}

// Get returns the tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) schema(t Tool) (*jsonschema.Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.schemas[t.Name()]; ok {
		return s, nil
	}
	raw, err := json.Marshal(t.InputSchema())
	if err != nil {
		return nil, err
	}
	s, err := jsonschema.CompileString(t.Name()+".schema.json", string(raw))
	if err != nil {
		return nil, err
	}
	r.schemas[t.Name()] = s
	return s, nil
}

// Execute routes one call. Unknown tools and invalid input come back as
// error results rather than Go errors so the model sees them.
func (r *Registry) Execute(ctx context.Context, name, inputJSON string) *Result {
	t, ok := r.Get(name)
	if !ok {
		return ErrorResult(fmt.Sprintf(`{"error":"unknown tool: %s"}`, name))
	}

	args := map[string]any{}
	if strings.TrimSpace(inputJSON) != "" {
		if err := json.Unmarshal([]byte(inputJSON), &args); err != nil {
			return ErrorResult(fmt.Sprintf("invalid tool input: %v", err))
		}
	}

	if schema, err := r.schema(t); err == nil {
		var decoded any = args
		if err := schema.Validate(decoded); err != nil {
			return ErrorResult(fmt.Sprintf("invalid input for %s: %v", name, err))
		}
	}

	return t.Execute(ctx, args)
}

// ExecuteArgs is Execute for already-decoded arguments.
func (r *Registry) ExecuteArgs(ctx context.Context, name string, args map[string]any) *Result {
	raw, err := json.Marshal(args)
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid tool input: %v", err))
	}
	return r.Execute(ctx, name, string(raw))
}

// Tool profiles (closed set). A profile names the base tool set an agent may
// use before allow/deny adjustments.
var profiles = map[string]map[string]bool{
	"minimal": {
		"web_fetch":      true,
		"web_search":     true,
		"memory":         true,
		"session_status": true,
	},
	"coding": {
		"web_fetch":      true,
		"web_search":     true,
		"memory":         true,
		"session_status": true,
		"shell":          true,
		"read_file":      true,
		"write_file":     true,
	},
}

// IsAvailable applies allow/deny semantics: a non-empty allow list requires
// membership; otherwise deny subtracts.
func IsAvailable(name string, allow, deny []string) bool {
	if len(allow) > 0 {
		found := false
		for _, a := range allow {
			if a == name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, d := range deny {
		if d == name {
			return false
		}
	}
	return true
}

// Filter returns the registered tool names visible under profile+allow+deny.
// The profile and allow list combine as the most permissive union; deny is
// subtracted last. Profile "full" (or unknown) passes everything through.
func (r *Registry) Filter(profile string, allow, deny []string) []string {
	base, restricted := profiles[profile]

	var names []string
	for _, name := range r.Names() {
		if restricted && !base[name] {
			allowed := false
			for _, a := range allow {
				if a == name {
					allowed = true
					break
				}
			}
			if !allowed {
				continue
			}
		}
		if len(allow) > 0 && !restricted {
			// Full profile with an allow list behaves as a pure allow list.
			found := false
			for _, a := range allow {
				if a == name {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		denied := false
		for _, d := range deny {
			if d == name {
				denied = true
				break
			}
		}
		if denied {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildSpecs returns the provider tool definitions for the filtered set.
func (r *Registry) BuildSpecs(profile string, allow, deny []string) []providers.ToolDefinition {
	var specs []providers.ToolDefinition
	for _, name := range r.Filter(profile, allow, deny) {
		t, ok := r.Get(name)
		if !ok {
			continue
		}
		specs = append(specs, providers.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return specs
}
