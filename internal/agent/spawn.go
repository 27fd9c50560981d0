package agent

import (
	"context"

	"github.com/bashclaw/bashclaw/internal/tools"
	"github.com/bashclaw/bashclaw/internal/util"
)

// SpawnRunFunc adapts the engine for the spawn tool: each spawned task runs
// as a subagent in a fresh logical sub-conversation.
func (e *Engine) SpawnRunFunc() tools.SpawnRunFunc {
	return func(ctx context.Context, task string) (string, error) {
		return e.Run(ctx, RunRequest{
			Agent:      "main",
			Message:    task,
			Channel:    "spawn",
			Sender:     util.NewID(),
			IsSubagent: true,
		})
	}
}
