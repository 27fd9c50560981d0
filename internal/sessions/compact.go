package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bashclaw/bashclaw/internal/providers"
	"github.com/bashclaw/bashclaw/internal/util"
)

const compactedPrefix = "[Compacted summary]"

// DetectOverflow reports whether a provider response body signals
// context-length exhaustion. The canonical trigger is "request_too_large"
// inside .error.message. Malformed JSON is never an overflow.
func DetectOverflow(body string) bool {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return false
	}
	return strings.Contains(parsed.Error.Message, "request_too_large")
}

// Compact summarises the older half of the session with the given model and
// replaces it with a single system entry, keeping the newest half verbatim.
// Best-effort: on any failure the file is left untouched and the session
// keeps growing until the next overflow.
func (s *Store) Compact(ctx context.Context, file string, p providers.Provider, model string) error {
	entries, err := s.Load(file, 0)
	if err != nil {
		return fmt.Errorf("sessions: compact load: %w", err)
	}
	if len(entries) < 2 {
		return nil
	}

	half := len(entries) / 2
	older, newer := entries[:half], entries[half:]

	var transcript strings.Builder
	for _, e := range older {
		transcript.WriteString(e.Role)
		transcript.WriteString(": ")
		transcript.WriteString(e.Content)
		transcript.WriteByte('\n')
	}

	resp, err := p.Chat(ctx, providers.ChatRequest{
		Model:  model,
		System: "You compress conversation history. Reply with only the summary.",
		Messages: []providers.Message{{
			Role:    "user",
			Content: "Summarize the conversation so far in under 300 words, keeping facts, names, decisions and open tasks:\n\n" + transcript.String(),
		}},
	})
	if err != nil {
		return fmt.Errorf("sessions: compact summarise: %w", err)
	}

	summary := Entry{
		Role:    "system",
		Content: compactedPrefix + "\n" + resp.Content,
		Ts:      util.NowMs(),
	}

	mtx := s.locks.get(file)
	mtx.Lock()
	defer mtx.Unlock()
	return s.rewrite(file, func([]Entry) []Entry {
		return append([]Entry{summary}, newer...)
	})
}
