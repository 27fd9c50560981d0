package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bashclaw/bashclaw/internal/bus"
	"github.com/bashclaw/bashclaw/internal/hooks"
	"github.com/bashclaw/bashclaw/internal/telemetry"
)

// RunRequest identifies one inbound message.
type RunRequest struct {
	Agent      string
	Message    string
	Channel    string
	Sender     string
	IsSubagent bool
}

// fireVoid dispatches a hook event whose result is ignored. Errors are
// logged, never propagated.
func (e *Engine) fireVoid(ctx context.Context, event string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if _, err := e.hooks.Run(ctx, event, string(data)); err != nil {
		slog.Warn("agent: hook event failed", "event", event, "error", err)
	}
}

// Run executes one conversation turn end to end: hooks, engine dispatch,
// session persistence, and event publication.
func (e *Engine) Run(ctx context.Context, req RunRequest) (string, error) {
	if req.Agent == "" {
		req.Agent = "main"
	}

	ctx, span := telemetry.Tracer().Start(ctx, "agent.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.id", req.Agent),
		attribute.String("agent.channel", req.Channel),
	)

	file := e.sessions.FilePath(req.Agent, req.Channel, req.Sender)
	if minutes := e.cfg.GetInt("session.idleResetMinutes", 0); minutes > 0 {
		e.sessions.CheckIdleReset(file, minutes)
	}

	e.fireVoid(ctx, hooks.EventBeforeAgentStart, map[string]any{
		"agent_id": req.Agent,
		"channel":  req.Channel,
		"sender":   req.Sender,
	})

	// pre_message may rewrite the inbound message.
	preInput, _ := json.Marshal(map[string]any{
		"agent_id": req.Agent,
		"message":  req.Message,
		"channel":  req.Channel,
		"sender":   req.Sender,
	})
	if out, err := e.hooks.Run(ctx, hooks.EventPreMessage, string(preInput)); err == nil {
		var doc struct {
			Message *string `json:"message"`
		}
		if json.Unmarshal([]byte(out), &doc) == nil && doc.Message != nil {
			req.Message = *doc.Message
		}
	}

	engine := e.ResolveEngine(req.Agent)
	span.SetAttributes(attribute.String("agent.engine", engine))
	e.bus.Publish(bus.Event{
		Type: bus.EventRunStarted, Agent: req.Agent, Channel: req.Channel,
		Payload: map[string]any{"engine": engine, "sender": req.Sender},
	})

	var text string
	var err error
	switch engine {
	case EngineClaude:
		text, err = e.runClaude(ctx, req, file)
	case EngineCodex:
		text, err = e.runCodex(ctx, req, file)
	default:
		text, err = e.runBuiltin(ctx, req, file)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.fireError(ctx, req, err)
		e.bus.Publish(bus.Event{
			Type: bus.EventRunFailed, Agent: req.Agent, Channel: req.Channel,
			Payload: map[string]any{"error": err.Error()},
		})
		return "", fmt.Errorf("agent %s: %w", req.Agent, err)
	}

	e.fireVoid(ctx, hooks.EventPostMessage, map[string]any{
		"agent_id": req.Agent,
		"text":     text,
		"channel":  req.Channel,
		"sender":   req.Sender,
	})
	e.fireVoid(ctx, hooks.EventAgentEnd, map[string]any{"agent_id": req.Agent})

	e.bus.Publish(bus.Event{
		Type: bus.EventRunCompleted, Agent: req.Agent, Channel: req.Channel,
		Payload: map[string]any{"chars": len(text)},
	})
	return text, nil
}

// fireError runs the on_error chain. A failing blocking hook cannot make a
// failed run any more failed, so its error is only logged.
func (e *Engine) fireError(ctx context.Context, req RunRequest, runErr error) {
	data, _ := json.Marshal(map[string]any{
		"agent_id": req.Agent,
		"error":    runErr.Error(),
	})
	if _, err := e.hooks.Run(ctx, hooks.EventOnError, string(data)); err != nil {
		slog.Warn("agent: on_error hook failed", "error", err)
	}
}
