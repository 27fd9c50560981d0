package hooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bashclaw/bashclaw/internal/util"
)

// External CLI hook event names mapped to internal events.
var bridgeEvents = map[string]string{
	"PreCompact":  EventPreCompact,
	"PostToolUse": EventPostToolUse,
}

// BridgeOutput is the reply document an external engine expects from the
// hooks-bridge subcommand.
type BridgeOutput struct {
	AdditionalContext  string `json:"additionalContext,omitempty"`
	HookSpecificOutput struct {
		HookEventName string `json:"hookEventName"`
	} `json:"hookSpecificOutput"`
}

// Bridge runs the internal chain for an external engine hook invocation and
// shapes the reply. When no hooks are enabled for the event (notably
// post_tool_use reflection), it returns "{}" so the engine proceeds
// untouched.
func (d *Dispatcher) Bridge(ctx context.Context, externalEvent, inputJSON string) (string, error) {
	event, ok := bridgeEvents[externalEvent]
	if !ok {
		return "", fmt.Errorf("hooks: unknown bridge event %q: %w", externalEvent, util.ErrValidation)
	}

	enabled := false
	for _, h := range d.ListByEvent(event) {
		if h.Enabled {
			enabled = true
			break
		}
	}
	if !enabled {
		return "{}", nil
	}

	result, err := d.Run(ctx, event, inputJSON)
	if err != nil {
		return "", err
	}

	var out BridgeOutput
	out.AdditionalContext = extractContext(result)
	out.HookSpecificOutput.HookEventName = externalEvent
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// extractContext pulls a human-readable context string out of the chain
// result: a top-level "additionalContext" or "context" field wins, otherwise
// the whole document is passed through.
func extractContext(result string) string {
	var doc map[string]any
	if err := json.Unmarshal([]byte(result), &doc); err != nil {
		return result
	}
	for _, key := range []string{"additionalContext", "context"} {
		if s, ok := doc[key].(string); ok && s != "" {
			return s
		}
	}
	return result
}
