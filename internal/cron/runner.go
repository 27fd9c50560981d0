package cron

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bashclaw/bashclaw/internal/util"
)

const (
	defaultTick       = time.Second
	defaultStuckAfter = 10 * time.Minute
	maxBackoffSeconds = 3600
)

// Handler executes one job's prompt and returns the assistant summary.
type Handler func(ctx context.Context, job Job) (string, error)

// Runner ticks over the job store and executes due jobs. A marker file under
// the runs directory guards each in-flight job so restarts never double-run.
type Runner struct {
	store      *Store
	runsDir    string
	handler    Handler
	tick       time.Duration
	stuckAfter time.Duration
	wg         sync.WaitGroup
}

func NewRunner(store *Store, runsDir string, handler Handler) *Runner {
	return &Runner{
		store:      store,
		runsDir:    runsDir,
		handler:    handler,
		tick:       defaultTick,
		stuckAfter: defaultStuckAfter,
	}
}

// SetStuckAfter overrides the stuck-marker threshold (cron.stuckRunMs).
func (r *Runner) SetStuckAfter(d time.Duration) {
	if d > 0 {
		r.stuckAfter = d
	}
}

// Start blocks, ticking until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	slog.Info("cron: runner started", "tick", r.tick.String())
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			slog.Info("cron: runner stopped")
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick evaluates every enabled job once.
func (r *Runner) Tick(ctx context.Context) {
	r.CheckStuck()

	jobs, err := r.store.List()
	if err != nil {
		slog.Error("cron: list jobs", "error", err)
		return
	}
	now := time.Now().Unix()
	for i, job := range jobs {
		if !job.Enabled {
			continue
		}
		spec := ParseSchedule(job.Schedule)
		next := job.NextRun
		if next == 0 {
			next = NextRun(spec, job.LastRun)
		}
		if next == 0 || next > now {
			continue
		}
		if r.hasMarker(job.ID) {
			continue
		}
		// Claim the marker before handing off so the next tick cannot
		// double-fire, then let the run proceed without blocking other
		// due jobs.
		marker, ok := r.claim(job.ID)
		if !ok {
			continue
		}
		r.wg.Add(1)
		go func(index int, job Job, spec ScheduleSpec, marker string) {
			defer r.wg.Done()
			r.runJob(ctx, index, job, spec, marker)
		}(i, job, spec, marker)
	}
}

// Wait blocks until every in-flight job has finished.
func (r *Runner) Wait() { r.wg.Wait() }

// Backoff returns the failure delay: min(3600, 30 * 2^failures) seconds.
func Backoff(failures int) time.Duration {
	secs := int64(30)
	for i := 0; i < failures && secs < maxBackoffSeconds; i++ {
		secs *= 2
	}
	if secs > maxBackoffSeconds {
		secs = maxBackoffSeconds
	}
	return time.Duration(secs) * time.Second
}

func (r *Runner) markerPath(id, nonce string) string {
	return filepath.Join(r.runsDir, util.SanitizeSegment(id)+"_"+nonce+".run")
}

func (r *Runner) hasMarker(id string) bool {
	matches, _ := filepath.Glob(filepath.Join(r.runsDir, util.SanitizeSegment(id)+"_*.run"))
	return len(matches) > 0
}

// claim writes the in-flight marker for one run. False means the marker could
// not be created and the job must not fire this tick.
func (r *Runner) claim(id string) (string, bool) {
	nonce := util.ShortHash(id + strconv.FormatInt(time.Now().UnixNano(), 10))
	marker := r.markerPath(id, nonce)
	if err := os.MkdirAll(r.runsDir, 0o755); err != nil {
		slog.Error("cron: mkdir runs", "error", err)
		return "", false
	}
	if err := os.WriteFile(marker, []byte(strconv.FormatInt(time.Now().Unix(), 10)), 0o600); err != nil {
		slog.Error("cron: write marker", "job", id, "error", err)
		return "", false
	}
	return marker, true
}

func (r *Runner) runJob(ctx context.Context, index int, job Job, spec ScheduleSpec, marker string) {
	defer os.Remove(marker)

	started := time.Now()
	slog.Info("cron: job firing", "job", job.ID, "schedule", job.Schedule)
	summary, err := r.handler(ctx, job)
	duration := time.Since(started).Milliseconds()

	now := time.Now().Unix()
	if err != nil {
		slog.Error("cron: job failed", "job", job.ID, "error", err)
		r.LogRun(job.ID, "error", err.Error(), duration, "")
		r.store.updateAt(index, func(j *Job) {
			j.LastRun = now
			j.Failures++
			j.NextRun = now + int64(Backoff(j.Failures).Seconds())
		})
		return
	}

	r.LogRun(job.ID, "success", "", duration, summary)
	r.store.updateAt(index, func(j *Job) {
		j.LastRun = now
		j.Failures = 0
		if spec.Kind == "at" {
			// One-shot schedules disable themselves after firing.
			j.Enabled = false
			j.NextRun = 0
			return
		}
		j.NextRun = NextRun(spec, now)
	})
}

// CheckStuck removes run markers older than the stuck threshold and logs an
// error entry for each, so a crashed run cannot wedge its job forever.
func (r *Runner) CheckStuck() {
	matches, err := filepath.Glob(filepath.Join(r.runsDir, "*.run"))
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-r.stuckAfter).Unix()
	for _, marker := range matches {
		data, err := os.ReadFile(marker)
		if err != nil {
			continue
		}
		started, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		if err != nil || started > cutoff {
			continue
		}
		base := filepath.Base(marker)
		id := base
		if i := strings.LastIndex(base, "_"); i > 0 {
			id = base[:i]
		}
		slog.Error("cron: removing stuck run marker", "job", id, "marker", base,
			"started", time.Unix(started, 0).Format(time.RFC3339))
		os.Remove(marker)
		r.LogRun(id, "error", fmt.Sprintf("stuck run cleaned after %s", r.stuckAfter), 0, "")
	}
}
