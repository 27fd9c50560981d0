package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/bashclaw/bashclaw/internal/bus"
	"github.com/bashclaw/bashclaw/internal/hooks"
	"github.com/bashclaw/bashclaw/internal/providers"
	"github.com/bashclaw/bashclaw/internal/sessions"
	"github.com/bashclaw/bashclaw/internal/telemetry"
)

// runBuiltin executes the provider tool-loop: call the model, execute any
// tool calls it emits, feed the results back, repeat until it answers in
// plain text or maxTurns is reached.
func (e *Engine) runBuiltin(ctx context.Context, req RunRequest, file string) (string, error) {
	provider, err := e.providerFor(req.Agent)
	if err != nil {
		return "", err
	}
	model := e.cfg.AgentGetString(req.Agent, "model", provider.DefaultModel())
	maxTurns := e.cfg.AgentGetInt(req.Agent, "maxTurns", defaultMaxTurns)
	maxHistory := e.cfg.AgentGetInt(req.Agent, "maxHistory", defaultMaxHistory)

	system := e.BuildSystemPrompt(req.Agent, req.IsSubagent)
	profile, allow, deny := e.toolConfig(req.Agent)
	specs := e.registry.BuildSpecs(profile, allow, deny)

	if err := e.sessions.Append(file, "user", req.Message); err != nil {
		return "", err
	}
	msgs, err := e.sessions.LoadMessages(file, maxHistory)
	if err != nil {
		return "", err
	}

	var totalUsage providers.Usage
	compacted := false

	for turn := 0; turn < maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("run cancelled: %w", err)
		}

		chatCtx, span := telemetry.Tracer().Start(ctx, "provider.chat")
		span.SetAttributes(
			attribute.String("provider.name", provider.Name()),
			attribute.String("provider.model", model),
		)
		resp, err := provider.Chat(chatCtx, providers.ChatRequest{
			System:   system,
			Messages: msgs,
			Tools:    specs,
			Model:    model,
		})
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		if err != nil {
			var httpErr *providers.HTTPError
			if !compacted && errors.As(err, &httpErr) && sessions.DetectOverflow(httpErr.Body) {
				compacted = true
				slog.Info("agent: context overflow, compacting session", "agent", req.Agent, "file", file)
				if cerr := e.sessions.Compact(ctx, file, provider, model); cerr != nil {
					slog.Warn("agent: compaction failed", "error", cerr)
					return "", fmt.Errorf("provider overflow: %w", err)
				}
				msgs, err = e.sessions.LoadMessages(file, maxHistory)
				if err != nil {
					return "", err
				}
				continue
			}
			return "", fmt.Errorf("provider: %w", err)
		}
		if resp.Usage != nil {
			totalUsage.PromptTokens += resp.Usage.PromptTokens
			totalUsage.CompletionTokens += resp.Usage.CompletionTokens
			totalUsage.TotalTokens += resp.Usage.TotalTokens
		}

		if len(resp.ToolCalls) == 0 {
			if err := e.sessions.Append(file, "assistant", resp.Content); err != nil {
				slog.Warn("agent: persist assistant turn", "error", err)
			}
			e.appendUsage(usageRecord{
				Agent:        req.Agent,
				Engine:       EngineBuiltin,
				Model:        model,
				InputTokens:  totalUsage.PromptTokens,
				OutputTokens: totalUsage.CompletionTokens,
			})
			return resp.Content, nil
		}

		msgs = append(msgs, providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			msgs = append(msgs, e.executeToolCall(ctx, req, tc))
		}
	}
	return "", fmt.Errorf("agent %s: no final answer after %d turns", req.Agent, maxTurns)
}

// executeToolCall runs one tool call with its hook envelope and returns the
// tool turn to feed back to the provider.
func (e *Engine) executeToolCall(ctx context.Context, req RunRequest, tc providers.ToolCall) providers.Message {
	args := tc.Arguments
	if args == nil {
		args = map[string]any{}
	}

	// pre_tool may rewrite the input.
	preInput, _ := json.Marshal(map[string]any{"tool": tc.Name, "input": args})
	if out, err := e.hooks.Run(ctx, hooks.EventPreTool, string(preInput)); err == nil {
		var doc struct {
			Input map[string]any `json:"input"`
		}
		if json.Unmarshal([]byte(out), &doc) == nil && doc.Input != nil {
			args = doc.Input
		}
	}

	e.bus.Publish(bus.Event{
		Type: bus.EventToolCall, Agent: req.Agent, Channel: req.Channel,
		Payload: map[string]any{"tool": tc.Name},
	})

	res := e.registry.ExecuteArgs(ctx, tc.Name, args)

	e.fireVoid(ctx, hooks.EventPostTool, map[string]any{
		"tool":     tc.Name,
		"output":   res.ForLLM,
		"is_error": res.IsError,
	})
	e.bus.Publish(bus.Event{
		Type: bus.EventToolResult, Agent: req.Agent, Channel: req.Channel,
		Payload: map[string]any{"tool": tc.Name, "is_error": res.IsError},
	})

	return providers.Message{
		Role:       "tool",
		Content:    res.ForLLM,
		ToolCallID: tc.ID,
	}
}
