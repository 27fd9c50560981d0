package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func metaPath(file string) string { return file + ".meta.json" }

// MetaUpdate sets one field in the sidecar metadata document. The sidecar is
// read-modify-written under the session's file lock.
func (s *Store) MetaUpdate(file, field string, value any) error {
	mtx := s.locks.get(file)
	mtx.Lock()
	defer mtx.Unlock()

	meta := map[string]any{}
	if data, err := os.ReadFile(metaPath(file)); err == nil {
		json.Unmarshal(data, &meta)
	}
	meta[field] = value

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("sessions: marshal meta: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("sessions: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(file), ".meta-*.tmp")
	if err != nil {
		return fmt.Errorf("sessions: meta temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sessions: write meta: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), metaPath(file))
}

// MetaGet reads one field from the sidecar, returning def when the sidecar
// or the field is absent.
func (s *Store) MetaGet(file, field string, def any) any {
	data, err := os.ReadFile(metaPath(file))
	if err != nil {
		return def
	}
	meta := map[string]any{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return def
	}
	if v, ok := meta[field]; ok {
		return v
	}
	return def
}

// MetaGetString is MetaGet narrowed to strings.
func (s *Store) MetaGetString(file, field, def string) string {
	if v, ok := s.MetaGet(file, field, nil).(string); ok {
		return v
	}
	return def
}
