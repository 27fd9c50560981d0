// Package cron implements scheduled agent runs: a JSON job store, schedule
// parsing, a ticking runner with crash-safe run markers, and per-job run logs.
package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bashclaw/bashclaw/internal/util"
)

// Job is one scheduled prompt.
type Job struct {
	ID            string `json:"id"`
	Schedule      string `json:"schedule"` // raw schedule input, see ParseSchedule
	Prompt        string `json:"prompt"`
	SessionTarget string `json:"sessionTarget,omitempty"`
	Agent         string `json:"agent,omitempty"`
	Enabled       bool   `json:"enabled"`
	CreatedAt     string `json:"created_at"`
	LastRun       int64  `json:"last_run,omitempty"` // epoch seconds
	NextRun       int64  `json:"next_run,omitempty"` // epoch seconds
	Failures      int    `json:"failures,omitempty"`
}

type jobsFile struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

// Store persists jobs in a single JSON document, atomically replaced on
// every write.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) load() (jobsFile, error) {
	jf := jobsFile{Version: 1}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return jf, nil
		}
		return jf, fmt.Errorf("cron: read jobs: %w", err)
	}
	if err := json.Unmarshal(data, &jf); err != nil {
		return jf, fmt.Errorf("cron: parse jobs: %w", err)
	}
	jf.Version = 1
	return jf, nil
}

func (s *Store) save(jf jobsFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("cron: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(jf, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".jobs-*.tmp")
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
	return os.Rename(tmp.Name(), s.path)
}

// Add validates the schedule and appends the job. Duplicate ids are
// permitted: both entries persist and both are evaluated by the runner.
func (s *Store) Add(job Job) error {
	if job.ID == "" {
		return fmt.Errorf("cron: empty job id: %w", util.ErrValidation)
	}
	spec := ParseSchedule(job.Schedule)
	if next := NextRun(spec, 0); next == 0 {
		return fmt.Errorf("cron: invalid schedule %q: %w", job.Schedule, util.ErrValidation)
	}
	if job.CreatedAt == "" {
		job.CreatedAt = util.NowISO()
	}
	job.Enabled = true
	job.NextRun = NextRun(spec, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	jf, err := s.load()
	if err != nil {
		return err
	}
	jf.Jobs = append(jf.Jobs, job)
	return s.save(jf)
}

// Remove drops every job with the given id. Returns how many were removed.
func (s *Store) Remove(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jf, err := s.load()
	if err != nil {
		return 0, err
	}
	kept := jf.Jobs[:0]
	removed := 0
	for _, j := range jf.Jobs {
		if j.ID == id {
			removed++
			continue
		}
		kept = append(kept, j)
	}
	if removed == 0 {
		return 0, fmt.Errorf("cron: job %s: %w", id, util.ErrNotFound)
	}
	jf.Jobs = kept
	return removed, s.save(jf)
}

// List returns all jobs in store order.
func (s *Store) List() ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jf, err := s.load()
	if err != nil {
		return nil, err
	}
	return jf.Jobs, nil
}

// SetEnabled flips every job with the given id.
func (s *Store) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jf, err := s.load()
	if err != nil {
		return err
	}
	found := false
	for i := range jf.Jobs {
		if jf.Jobs[i].ID == id {
			jf.Jobs[i].Enabled = enabled
			found = true
		}
	}
	if !found {
		return fmt.Errorf("cron: job %s: %w", id, util.ErrNotFound)
	}
	return s.save(jf)
}

// updateAt mutates one job entry by store index. Duplicate ids stay
// independent because scheduling state is tracked per entry.
func (s *Store) updateAt(index int, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jf, err := s.load()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(jf.Jobs) {
		return fmt.Errorf("cron: job index %d: %w", index, util.ErrNotFound)
	}
	fn(&jf.Jobs[index])
	return s.save(jf)
}
