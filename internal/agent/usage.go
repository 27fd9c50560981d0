package agent

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bashclaw/bashclaw/internal/util"
)

// usageRecord is one line of usage/usage.jsonl.
type usageRecord struct {
	Ts           string  `json:"ts"`
	Agent        string  `json:"agent"`
	Engine       string  `json:"engine"`
	Model        string  `json:"model,omitempty"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
}

// appendUsage is best-effort accounting; failures are logged only.
func (e *Engine) appendUsage(rec usageRecord) {
	if e.usagePath == "" {
		return
	}
	rec.Ts = util.NowISO()
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(e.usagePath), 0o755); err != nil {
		slog.Warn("agent: usage dir", "error", err)
		return
	}
	f, err := os.OpenFile(e.usagePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		slog.Warn("agent: open usage log", "error", err)
		return
	}
	defer f.Close()
	f.Write(append(line, '\n'))
}
