package agent

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bashclaw/bashclaw/internal/providers"
	"github.com/bashclaw/bashclaw/internal/util"
)

// Workspace bootstrap files in prompt order, with their prompt labels.
var bootstrapFiles = []struct {
	name  string
	label string
}{
	{"IDENTITY.md", "Identity"},
	{"SOUL.md", "Soul"},
	{"USER.md", "User"},
	{"MEMORY.md", "Memory"},
	{"TOOLS.md", "Tools"},
	{"AGENTS.md", "Agents"},
}

const memoryRecallBlock = "Memory recall: before answering questions about " +
	"prior work, people or preferences, consult the memory tool (search action) " +
	"and your MEMORY.md notes."

// BuildSystemPrompt composes the agent's system prompt from its configured
// systemPrompt, the workspace bootstrap files, and the memory recall
// guidance. Subagents skip SOUL.md and the recall block.
func (e *Engine) BuildSystemPrompt(agentID string, isSubagent bool) string {
	var parts []string

	if sp := e.cfg.AgentGetString(agentID, "systemPrompt", ""); sp != "" {
		parts = append(parts, sp)
	}

	dir := filepath.Join(e.agentsDir, util.SanitizeSegment(agentID))
	for _, bf := range bootstrapFiles {
		if isSubagent && bf.name == "SOUL.md" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, bf.name))
		if err != nil {
			continue // missing bootstrap files are never errors
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			continue
		}
		parts = append(parts, "["+bf.label+"]\n"+text)
	}

	if !isSubagent {
		parts = append(parts, memoryRecallBlock)
	}
	return strings.Join(parts, "\n\n")
}

// BuildMessages projects the session history to provider messages and
// appends the new user turn.
func (e *Engine) BuildMessages(sessionFile, userMessage string, maxHistory int) ([]providers.Message, error) {
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	msgs, err := e.sessions.LoadMessages(sessionFile, maxHistory)
	if err != nil {
		return nil, err
	}
	return append(msgs, providers.Message{Role: "user", Content: userMessage}), nil
}
