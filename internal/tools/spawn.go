package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bashclaw/bashclaw/internal/util"
)

const spawnReapAge = 24 * time.Hour

// SpawnRunFunc executes a subagent task and returns the assistant text. It is
// injected by the engine at wiring time.
type SpawnRunFunc func(ctx context.Context, task string) (string, error)

// SpawnRecord is the status file written under spawn/<id>.json.
type SpawnRecord struct {
	ID         string `json:"id"`
	Task       string `json:"task"`
	Label      string `json:"label,omitempty"`
	Status     string `json:"status"` // running, completed, error
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// SpawnTool launches an asynchronous subagent run and reports a handle the
// model can poll via spawn_status.
type SpawnTool struct {
	dir string
	run SpawnRunFunc

	mu sync.Mutex
	wg sync.WaitGroup
}

func NewSpawnTool(dir string, run SpawnRunFunc) *SpawnTool {
	return &SpawnTool{dir: dir, run: run}
}

func (t *SpawnTool) Name() string { return "spawn" }

func (t *SpawnTool) Description() string {
	return "Launch a background subagent task. Returns immediately with a task id."
}

func (t *SpawnTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task":  map[string]any{"type": "string", "description": "Task for the subagent"},
			"label": map[string]any{"type": "string"},
		},
		"required": []any{"task"},
	}
}

func (t *SpawnTool) recordPath(id string) string {
	return filepath.Join(t.dir, util.SanitizeSegment(id)+".json")
}

func (t *SpawnTool) writeRecord(rec SpawnRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(t.dir, ".spawn-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), t.recordPath(rec.ID))
}

func (t *SpawnTool) Execute(ctx context.Context, args map[string]any) *Result {
	task, _ := args["task"].(string)
	if strings.TrimSpace(task) == "" {
		return ErrorResult("task is required")
	}
	label, _ := args["label"].(string)

	id := util.NewID()
	rec := SpawnRecord{
		ID:        id,
		Task:      task,
		Label:     label,
		Status:    "running",
		StartedAt: util.NowISO(),
	}
	if err := t.writeRecord(rec); err != nil {
		return ErrorResult(fmt.Sprintf("spawn: %v", err)).WithError(err)
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		// The spawned run outlives the parent request.
		result, err := t.run(context.Background(), task)
		rec.FinishedAt = util.NowISO()
		if err != nil {
			rec.Status = "error"
			rec.Error = err.Error()
		} else {
			rec.Status = "completed"
			rec.Result = result
		}
		if werr := t.writeRecord(rec); werr != nil {
			slog.Error("spawn: write status", "id", id, "error", werr)
		}
	}()

	payload, _ := json.Marshal(map[string]any{
		"id":     id,
		"status": "started",
		"check":  fmt.Sprintf("spawn_status(%s)", id),
	})
	return AsyncResult(string(payload))
}

// Wait blocks until all in-flight spawns finish. Used by tests and shutdown.
func (t *SpawnTool) Wait() { t.wg.Wait() }

// Reap deletes finished status files older than 24h.
func (t *SpawnTool) Reap() {
	matches, _ := filepath.Glob(filepath.Join(t.dir, "*.json"))
	cutoff := time.Now().Add(-spawnReapAge)
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var rec SpawnRecord
		if err := json.Unmarshal(data, &rec); err != nil || rec.Status == "running" {
			continue
		}
		finished, err := time.Parse(time.RFC3339, rec.FinishedAt)
		if err != nil || finished.After(cutoff) {
			continue
		}
		os.Remove(path)
	}
}

// SpawnStatusTool reads back a spawn record.
type SpawnStatusTool struct {
	dir string
}

func NewSpawnStatusTool(dir string) *SpawnStatusTool {
	return &SpawnStatusTool{dir: dir}
}

func (t *SpawnStatusTool) Name() string { return "spawn_status" }

func (t *SpawnStatusTool) Description() string {
	return "Check the status of a spawned background task."
}

func (t *SpawnStatusTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task_id": map[string]any{"type": "string"},
		},
		"required": []any{"task_id"},
	}
}

func (t *SpawnStatusTool) Execute(ctx context.Context, args map[string]any) *Result {
	id, _ := args["task_id"].(string)
	data, err := os.ReadFile(filepath.Join(t.dir, util.SanitizeSegment(id)+".json"))
	if err != nil {
		return ErrorResult(`{"error":"not found"}`)
	}
	return NewResult(string(data))
}
