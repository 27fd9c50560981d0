package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bashclaw/bashclaw/internal/cron"
	"github.com/bashclaw/bashclaw/internal/util"
)

// CronTool is a thin facade over the cron job store.
type CronTool struct {
	store *cron.Store
}

func NewCronTool(store *cron.Store) *CronTool {
	return &CronTool{store: store}
}

func (t *CronTool) Name() string { return "cron" }

func (t *CronTool) Description() string {
	return "Manage scheduled jobs. Actions: add, list, remove."
}

func (t *CronTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []any{"add", "list", "remove"},
			},
			"id":       map[string]any{"type": "string"},
			"schedule": map[string]any{"type": "string", "description": "Cron expression or JSON schedule spec"},
			"prompt":   map[string]any{"type": "string"},
			"sessionTarget": map[string]any{
				"type":        "string",
				"description": "Session the job posts into",
			},
		},
		"required": []any{"action"},
	}
}

func (t *CronTool) Execute(ctx context.Context, args map[string]any) *Result {
	action, _ := args["action"].(string)
	id, _ := args["id"].(string)

	switch action {
	case "add":
		schedule, _ := args["schedule"].(string)
		prompt, _ := args["prompt"].(string)
		target, _ := args["sessionTarget"].(string)
		if id == "" {
			id = util.NewID()
		}
		err := t.store.Add(cron.Job{
			ID:            id,
			Schedule:      schedule,
			Prompt:        prompt,
			SessionTarget: target,
		})
		if err != nil {
			return ErrorResult(err.Error()).WithError(err)
		}
		return NewResult(fmt.Sprintf(`{"id":%q,"status":"scheduled"}`, id))

	case "list":
		jobs, err := t.store.List()
		if err != nil {
			return ErrorResult(err.Error()).WithError(err)
		}
		if jobs == nil {
			jobs = []cron.Job{}
		}
		payload, _ := json.Marshal(jobs)
		return NewResult(string(payload))

	case "remove":
		removed, err := t.store.Remove(id)
		if err != nil {
			return ErrorResult(err.Error()).WithError(err)
		}
		return NewResult(fmt.Sprintf(`{"removed":%d}`, removed))

	default:
		return ErrorResult(fmt.Sprintf("unknown cron action %q", action))
	}
}
