package cron

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bashclaw/bashclaw/internal/util"
)

const maxRunLogBytes = 5 << 20

// RunRecord is one line of a job's run log.
type RunRecord struct {
	Ts         string `json:"ts"`
	Status     string `json:"status"` // "success" or "error"
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Summary    string `json:"summary,omitempty"`
}

// RunStats aggregates a job's run log.
type RunStats struct {
	Total         int   `json:"total"`
	Success       int   `json:"success"`
	Errors        int   `json:"errors"`
	AvgDurationMs int64 `json:"avg_duration_ms"`
}

func (r *Runner) runLogPath(id string) string {
	return filepath.Join(r.runsDir, util.SanitizeSegment(id)+".jsonl")
}

// LogRun appends one record to the job's run log, rotating in place (keeping
// the newest half) once the file passes 5 MiB.
func (r *Runner) LogRun(id, status, errMsg string, durationMs int64, summary string) {
	rec := RunRecord{
		Ts:         util.NowISO(),
		Status:     status,
		Error:      errMsg,
		DurationMs: durationMs,
		Summary:    summary,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := os.MkdirAll(r.runsDir, 0o755); err != nil {
		slog.Warn("cron: mkdir runs", "error", err)
		return
	}
	path := r.runLogPath(id)
	if info, err := os.Stat(path); err == nil && info.Size() > maxRunLogBytes {
		rotateRunLog(path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		slog.Warn("cron: open run log", "job", id, "error", err)
		return
	}
	defer f.Close()
	f.Write(append(line, '\n'))
}

// rotateRunLog keeps the newest half of the file, aligned to a line boundary.
func rotateRunLog(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	half := data[len(data)/2:]
	if i := bytes.IndexByte(half, '\n'); i >= 0 && i+1 < len(half) {
		half = half[i+1:]
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".runlog-*.tmp")
	if err != nil {
		return
	}
	if _, err := tmp.Write(half); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return
	}
	os.Rename(tmp.Name(), path)
}

// RunHistory returns the last limit records, oldest first. No log means an
// empty slice, never an error.
func (r *Runner) RunHistory(id string, limit int) []RunRecord {
	data, err := os.ReadFile(r.runLogPath(id))
	if err != nil {
		return []RunRecord{}
	}
	var records []RunRecord
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec RunRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	if records == nil {
		records = []RunRecord{}
	}
	return records
}

// RunStats aggregates the whole run log for a job.
func (r *Runner) RunStats(id string) RunStats {
	records := r.RunHistory(id, 0)
	stats := RunStats{Total: len(records)}
	var totalDur int64
	for _, rec := range records {
		if rec.Status == "success" {
			stats.Success++
		} else {
			stats.Errors++
		}
		totalDur += rec.DurationMs
	}
	if stats.Total > 0 {
		stats.AvgDurationMs = totalDur / int64(stats.Total)
	}
	return stats
}
