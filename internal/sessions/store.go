// Package sessions implements the append-only conversation log.
//
// A session is a file of JSON lines. Line 1 is the immutable header
// (type "session"); every later line is one conversation entry. A sidecar
// <file>.meta.json holds mutable metadata such as external engine session
// ids. Writes are line-atomic: each entry goes out in a single write on an
// O_APPEND descriptor, so concurrent readers always see whole lines.
package sessions

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bashclaw/bashclaw/internal/providers"
	"github.com/bashclaw/bashclaw/internal/util"
)

// Session scope constants (session.scope config values).
const (
	ScopeGlobal         = "global"
	ScopePerChannel     = "per-channel"
	ScopePerSender      = "per-sender"
	ScopePerChannelPeer = "per-channel-peer"
)

// Header is the first line of every session file.
type Header struct {
	Type      string `json:"type"`
	Version   string `json:"version"`
	Engine    string `json:"engine"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
}

// Entry is one conversation turn.
type Entry struct {
	Role       string               `json:"role"`
	Content    string               `json:"content"`
	Ts         int64                `json:"ts"` // ms epoch
	ToolCalls  []providers.ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string               `json:"toolCallID,omitempty"`
}

// Store manages session files under a root directory.
type Store struct {
	root  string
	scope string
	locks *lockTable
}

// NewStore creates a session store rooted at dir with the given scope.
func NewStore(dir, scope string) *Store {
	if scope == "" {
		scope = ScopePerSender
	}
	return &Store{root: dir, scope: scope, locks: newLockTable(256)}
}

// Root returns the sessions base directory.
func (s *Store) Root() string { return s.root }

// SetScope changes the scoping mode used by FilePath.
func (s *Store) SetScope(scope string) {
	if scope != "" {
		s.scope = scope
	}
}

// FilePath returns the stable session file path for the tuple. The path
// shape depends on the configured scope:
//
//	global:            <root>/<agent>.jsonl
//	per-channel:       <root>/<agent>/<channel>.jsonl
//	per-sender:        <root>/<agent>/<channel>/<sender>.jsonl
//	per-channel-peer:  <root>/<agent>/<channel>/<sender>.jsonl
func (s *Store) FilePath(agent, channel, sender string) string {
	agent = util.SanitizeSegment(agent)
	channel = util.SanitizeSegment(nonEmpty(channel, "default"))
	sender = util.SanitizeSegment(nonEmpty(sender, "anonymous"))

	switch s.scope {
	case ScopeGlobal:
		return filepath.Join(s.root, agent+".jsonl")
	case ScopePerChannel:
		return filepath.Join(s.root, agent, channel+".jsonl")
	default: // per-sender, per-channel-peer
		return filepath.Join(s.root, agent, channel, sender+".jsonl")
	}
}

func nonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Append writes one entry as a single JSON line, creating the file (and its
// header) on first write.
func (s *Store) Append(file, role, content string) error {
	return s.AppendEntry(file, Entry{Role: role, Content: content, Ts: util.NowMs()})
}

// AppendEntry appends a full entry, including tool-call fields.
func (s *Store) AppendEntry(file string, e Entry) error {
	if e.Ts == 0 {
		e.Ts = util.NowMs()
	}
	mtx := s.locks.get(file)
	mtx.Lock()
	defer mtx.Unlock()

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("sessions: mkdir: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("sessions: open %s: %w", file, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("sessions: stat: %w", err)
	}
	if info.Size() == 0 {
		hdr := Header{
			Type:      "session",
			Version:   "1",
			Engine:    "bashclaw",
			ID:        util.NewID(),
			Timestamp: util.NowISO(),
		}
		line, _ := json.Marshal(hdr)
		if _, err := f.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("sessions: write header: %w", err)
		}
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("sessions: marshal entry: %w", err)
	}
	// One write call per line keeps concurrent readers on whole lines.
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("sessions: append: %w", err)
	}
	return nil
}

// Load returns the entries in append order, skipping the header, malformed
// lines and entries without a role. maxLines > 0 keeps only the newest N.
func (s *Store) Load(file string, maxLines int) ([]Entry, error) {
	f, err := os.Open(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sessions: open %s: %w", file, err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		if lineNo == 1 && isHeaderLine(raw) {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			slog.Warn("sessions: dropping malformed line", "file", file, "line", lineNo, "error", err)
			continue
		}
		if e.Role == "" {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return entries, fmt.Errorf("sessions: scan %s: %w", file, err)
	}
	if maxLines > 0 && len(entries) > maxLines {
		entries = entries[len(entries)-maxLines:]
	}
	return entries, nil
}

// LoadMessages projects the log to provider messages ({role, content} only).
func (s *Store) LoadMessages(file string, maxLines int) ([]providers.Message, error) {
	entries, err := s.Load(file, maxLines)
	if err != nil {
		return nil, err
	}
	msgs := make([]providers.Message, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, providers.Message{Role: e.Role, Content: e.Content})
	}
	return msgs, nil
}

// Count returns the number of non-header lines.
func (s *Store) Count(file string) int {
	f, err := os.Open(file)
	if err != nil {
		return 0
	}
	defer f.Close()

	count := 0
	lineNo := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lineNo++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		if lineNo == 1 && isHeaderLine(raw) {
			continue
		}
		count++
	}
	return count
}

// Prune rewrites the file keeping the header plus the newest keep entries.
func (s *Store) Prune(file string, keep int) error {
	mtx := s.locks.get(file)
	mtx.Lock()
	defer mtx.Unlock()
	return s.rewrite(file, func(entries []Entry) []Entry {
		if keep < 0 {
			keep = 0
		}
		if len(entries) > keep {
			entries = entries[len(entries)-keep:]
		}
		return entries
	})
}

// Clear truncates the session to zero bytes. The header is re-written on the
// next append.
func (s *Store) Clear(file string) error {
	mtx := s.locks.get(file)
	mtx.Lock()
	defer mtx.Unlock()
	err := os.Truncate(file, 0)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Delete removes the session file and its metadata sidecar.
func (s *Store) Delete(file string) error {
	mtx := s.locks.get(file)
	mtx.Lock()
	defer mtx.Unlock()
	if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sessions: delete %s: %w", file, err)
	}
	if err := os.Remove(metaPath(file)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sessions: delete meta: %w", err)
	}
	return nil
}

// CheckIdleReset clears the session when the last entry is older than
// minutes. Returns true when a reset happened.
func (s *Store) CheckIdleReset(file string, minutes int) bool {
	if minutes <= 0 {
		return false
	}
	entries, err := s.Load(file, 0)
	if err != nil || len(entries) == 0 {
		return false
	}
	last := time.UnixMilli(entries[len(entries)-1].Ts)
	if time.Since(last) < time.Duration(minutes)*time.Minute {
		return false
	}
	if err := s.Clear(file); err != nil {
		slog.Warn("sessions: idle reset clear failed", "file", file, "error", err)
		return false
	}
	slog.Info("sessions: idle reset", "file", file, "idle_minutes", minutes)
	return true
}

// rewrite loads the file (preserving its header line verbatim), applies fn to
// the entries and atomically replaces the file. Caller holds the file lock.
func (s *Store) rewrite(file string, fn func([]Entry) []Entry) error {
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("sessions: read %s: %w", file, err)
	}

	lines := strings.Split(string(data), "\n")
	headerLine := ""
	var entries []Entry
	for i, raw := range lines {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if i == 0 && isHeaderLine(raw) {
			headerLine = raw
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil || e.Role == "" {
			continue
		}
		entries = append(entries, e)
	}

	entries = fn(entries)

	var b strings.Builder
	if headerLine != "" {
		b.WriteString(headerLine)
		b.WriteByte('\n')
	}
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			continue
		}
		b.Write(line)
		b.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(filepath.Dir(file), ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("sessions: temp: %w", err)
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sessions: rewrite: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), file)
}

func isHeaderLine(raw string) bool {
	var h Header
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return false
	}
	return h.Type == "session"
}
