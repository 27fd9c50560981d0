package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bashclaw/bashclaw/internal/memory"
	"github.com/bashclaw/bashclaw/internal/util"
)

// MemoryTool is a thin facade over the memory store.
type MemoryTool struct {
	store *memory.Store
}

func NewMemoryTool(store *memory.Store) *MemoryTool {
	return &MemoryTool{store: store}
}

func (t *MemoryTool) Name() string { return "memory" }

func (t *MemoryTool) Description() string {
	return "Store and recall long-term memories. Actions: set, get, delete, list, search."
}

func (t *MemoryTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []any{"set", "get", "delete", "list", "search"},
			},
			"key":   map[string]any{"type": "string"},
			"value": map[string]any{"type": "string"},
			"tags":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"query": map[string]any{"type": "string"},
			"limit": map[string]any{"type": "number"},
		},
		"required": []any{"action"},
	}
}

func (t *MemoryTool) Execute(ctx context.Context, args map[string]any) *Result {
	action, _ := args["action"].(string)
	key, _ := args["key"].(string)

	switch action {
	case "set":
		value, _ := args["value"].(string)
		var tags []string
		if raw, ok := args["tags"].([]any); ok {
			for _, v := range raw {
				if s, ok := v.(string); ok {
					tags = append(tags, s)
				}
			}
		}
		if err := t.store.Set(key, value, tags); err != nil {
			return ErrorResult(err.Error()).WithError(err)
		}
		return NewResult(fmt.Sprintf("stored %q", key))

	case "get":
		e, err := t.store.Get(key)
		if err != nil {
			if errors.Is(err, util.ErrNotFound) {
				return ErrorResult(fmt.Sprintf("no memory for %q", key))
			}
			return ErrorResult(err.Error()).WithError(err)
		}
		payload, _ := json.Marshal(e)
		return NewResult(string(payload))

	case "delete":
		if err := t.store.Delete(key); err != nil {
			if errors.Is(err, util.ErrNotFound) {
				return ErrorResult(fmt.Sprintf("no memory for %q", key))
			}
			return ErrorResult(err.Error()).WithError(err)
		}
		return NewResult(fmt.Sprintf("deleted %q", key))

	case "list":
		limit := 0
		if v, ok := args["limit"].(float64); ok {
			limit = int(v)
		}
		entries, err := t.store.List(limit)
		if err != nil {
			return ErrorResult(err.Error()).WithError(err)
		}
		payload, _ := json.Marshal(entries)
		return NewResult(string(payload))

	case "search":
		query, _ := args["query"].(string)
		limit := 10
		if v, ok := args["limit"].(float64); ok && v > 0 {
			limit = int(v)
		}
		results, err := t.store.SearchText(query, limit)
		if err != nil {
			return ErrorResult(err.Error()).WithError(err)
		}
		payload, _ := json.Marshal(results)
		return NewResult(string(payload))

	default:
		return ErrorResult(fmt.Sprintf("unknown memory action %q", action))
	}
}
