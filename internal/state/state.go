// Package state resolves the on-disk layout of the runtime state directory.
//
// Layout under the base dir:
//
//	sessions/<...>.jsonl (+ .meta.json)
//	memory/<safekey>.json, memory/.workspace_index.json
//	hooks/<name>.json
//	cron/jobs.json, cron/runs/<id>.jsonl, cron/runs/<id>_<nonce>.run
//	spawn/<id>.json
//	usage/usage.jsonl
//	agents/<id>/{IDENTITY,SOUL,USER,MEMORY,TOOLS,AGENTS}.md
package state

import (
	"os"
	"path/filepath"
)

// Dir returns the state base directory. BASHCLAW_STATE_DIR overrides the
// default ~/.bashclaw.
func Dir() string {
	if v := os.Getenv("BASHCLAW_STATE_DIR"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bashclaw"
	}
	return filepath.Join(home, ".bashclaw")
}

func Sessions() string  { return filepath.Join(Dir(), "sessions") }
func Autoreply() string { return filepath.Join(Dir(), "autoreply.json") }
func Memory() string    { return filepath.Join(Dir(), "memory") }
func Hooks() string     { return filepath.Join(Dir(), "hooks") }
func Cron() string      { return filepath.Join(Dir(), "cron") }
func CronRuns() string  { return filepath.Join(Dir(), "cron", "runs") }
func Spawn() string     { return filepath.Join(Dir(), "spawn") }
func Usage() string     { return filepath.Join(Dir(), "usage") }

func AgentDir(id string) string { return filepath.Join(Dir(), "agents", id) }

// ConfigPath returns the default config file location.
func ConfigPath() string {
	if v := os.Getenv("BASHCLAW_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(Dir(), "config.json")
}
