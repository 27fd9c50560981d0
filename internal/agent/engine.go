// Package agent implements the conversational engine: system prompt
// assembly, the builtin provider tool-loop, and adaptors that delegate runs
// to external coding CLIs.
package agent

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/bashclaw/bashclaw/internal/bus"
	"github.com/bashclaw/bashclaw/internal/config"
	"github.com/bashclaw/bashclaw/internal/hooks"
	"github.com/bashclaw/bashclaw/internal/memory"
	"github.com/bashclaw/bashclaw/internal/providers"
	"github.com/bashclaw/bashclaw/internal/sessions"
	"github.com/bashclaw/bashclaw/internal/tools"
)

// Engines.
const (
	EngineBuiltin = "builtin"
	EngineClaude  = "claude"
	EngineCodex   = "codex"
	EngineAuto    = "auto"
)

const (
	defaultMaxTurns   = 50
	defaultMaxHistory = 100
)

// Engine runs agent conversations.
type Engine struct {
	cfg      *config.Store
	sessions *sessions.Store
	mem      *memory.Store
	registry *tools.Registry
	hooks    *hooks.Dispatcher
	bus      *bus.Bus

	agentsDir string // per-agent workspaces with bootstrap files
	usagePath string // usage/usage.jsonl
	binary    string // path to this executable, for external engine bridges

	// providerFor is swappable in tests.
	providerFor func(agentID string) (providers.Provider, error)
	// lookPath is swappable in tests (external engine probing).
	lookPath func(name string) (string, error)
}

// Options wires an Engine.
type Options struct {
	Config    *config.Store
	Sessions  *sessions.Store
	Memory    *memory.Store
	Registry  *tools.Registry
	Hooks     *hooks.Dispatcher
	Bus       *bus.Bus
	AgentsDir string
	UsagePath string
	Binary    string
}

func New(opts Options) *Engine {
	e := &Engine{
		cfg:       opts.Config,
		sessions:  opts.Sessions,
		mem:       opts.Memory,
		registry:  opts.Registry,
		hooks:     opts.Hooks,
		bus:       opts.Bus,
		agentsDir: opts.AgentsDir,
		usagePath: opts.UsagePath,
		binary:    opts.Binary,
		lookPath:  exec.LookPath,
	}
	if e.binary == "" {
		if self, err := os.Executable(); err == nil {
			e.binary = self
		}
	}
	e.providerFor = e.buildProvider
	return e
}

// SetProviderFactory overrides provider construction (tests).
func (e *Engine) SetProviderFactory(fn func(agentID string) (providers.Provider, error)) {
	e.providerFor = fn
}

// Sessions exposes the session store for callers that manage session files.
func (e *Engine) Sessions() *sessions.Store { return e.sessions }

// buildProvider constructs the configured provider for an agent.
func (e *Engine) buildProvider(agentID string) (providers.Provider, error) {
	name := e.cfg.AgentGetString(agentID, "provider", "anthropic")
	model := e.cfg.AgentGetString(agentID, "model", "")

	switch name {
	case "anthropic":
		key := e.cfg.GetString("providers.anthropic.apiKey", os.Getenv("ANTHROPIC_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("agent %s: anthropic api key not configured", agentID)
		}
		var opts []providers.AnthropicOption
		if model != "" {
			opts = append(opts, providers.WithAnthropicModel(model))
		}
		if base := e.cfg.GetString("providers.anthropic.baseURL", ""); base != "" {
			opts = append(opts, providers.WithAnthropicBaseURL(base))
		}
		return providers.NewAnthropicProvider(key, opts...), nil

	case "openai":
		key := e.cfg.GetString("providers.openai.apiKey", os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("agent %s: openai api key not configured", agentID)
		}
		base := e.cfg.GetString("providers.openai.baseURL", "")
		return providers.NewOpenAIProvider(key, base, model), nil

	case "mock":
		return providers.NewMockProvider(providers.MockText("mock reply")), nil

	default:
		return nil, fmt.Errorf("agent %s: unknown provider %q", agentID, name)
	}
}

// ResolveEngine maps an agent's configured engine to a concrete one. "auto"
// probes the external CLIs on PATH and falls back to builtin; unknown values
// also fall back to builtin.
func (e *Engine) ResolveEngine(agentID string) string {
	engine := e.cfg.AgentGetString(agentID, "engine", EngineBuiltin)
	switch engine {
	case EngineBuiltin, EngineClaude, EngineCodex:
		return engine
	case EngineAuto:
		if _, err := e.lookPath("claude"); err == nil {
			return EngineClaude
		}
		if _, err := e.lookPath("codex"); err == nil {
			return EngineCodex
		}
		return EngineBuiltin
	default:
		return EngineBuiltin
	}
}

// toolConfig reads an agent's tool filtering settings.
func (e *Engine) toolConfig(agentID string) (profile string, allow, deny []string) {
	profile = e.cfg.AgentGetString(agentID, "tools.profile", "full")
	allow = toStrings(e.cfg.AgentGet(agentID, "tools.allow", nil))
	deny = toStrings(e.cfg.AgentGet(agentID, "tools.deny", nil))
	return profile, allow, deny
}

func toStrings(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss
		}
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
