package agent

import (
	"context"

	"github.com/bashclaw/bashclaw/internal/cron"
)

// CronHandler adapts the engine for the cron runner: each job's prompt runs
// under the job's session target on the cron channel.
func (e *Engine) CronHandler() cron.Handler {
	return func(ctx context.Context, job cron.Job) (string, error) {
		agentID := job.Agent
		if agentID == "" {
			agentID = "main"
		}
		sender := job.SessionTarget
		if sender == "" {
			sender = job.ID
		}
		return e.Run(ctx, RunRequest{
			Agent:   agentID,
			Message: job.Prompt,
			Channel: "cron",
			Sender:  sender,
		})
	}
}
