package config

import (
	"os"
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestGetSetRoundTrip(t *testing.T) {
	s := openTemp(t)

	if err := s.Set("gateway.auth.token", "sekrit"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := s.GetString("gateway.auth.token", ""); got != "sekrit" {
		t.Errorf("GetString = %q, want sekrit", got)
	}

	// Set persists: a fresh store over the same file sees the value.
	s2, err := Open(s.Path())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := s2.GetString("gateway.auth.token", ""); got != "sekrit" {
		t.Errorf("reopened GetString = %q, want sekrit", got)
	}
}

func TestGetMissingReturnsDefault(t *testing.T) {
	s := openTemp(t)
	if got := s.GetString("no.such.path", "fallback"); got != "fallback" {
		t.Errorf("got %q, want fallback", got)
	}
	if got := s.GetInt("gateway.port", 0); got != 18900 {
		t.Errorf("default port = %d, want 18900", got)
	}
}

func TestEnvSubstitute(t *testing.T) {
	t.Setenv("BC_TEST_VAL", "hello")
	tests := []struct {
		in, want string
	}{
		{"${BC_TEST_VAL}", "hello"},
		{"x-${BC_TEST_VAL}-y", "x-hello-y"},
		{"${BC_TEST_UNDEFINED_VAR}", ""},
		{"plain", "plain"},
		{"${BC_TEST_VAL}${BC_TEST_VAL}", "hellohello"},
	}
	for _, tt := range tests {
		if got := EnvSubstitute(tt.in); got != tt.want {
			t.Errorf("EnvSubstitute(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnvSubstituteOnRead(t *testing.T) {
	t.Setenv("BC_TOKEN", "t0k")
	s := openTemp(t)
	if err := s.Set("gateway.auth.token", "${BC_TOKEN}"); err != nil {
		t.Fatal(err)
	}
	if got := s.GetString("gateway.auth.token", ""); got != "t0k" {
		t.Errorf("got %q, want t0k", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Store)
		wantErr bool
	}{
		{"defaults ok", func(s *Store) {}, false},
		{"port too high", func(s *Store) { s.Set("gateway.port", 70000) }, true},
		{"port zero", func(s *Store) { s.Set("gateway.port", 0) }, true},
		{"port non-integer", func(s *Store) { s.Set("gateway.port", 80.5) }, true},
		{"agent without id", func(s *Store) {
			s.Set("agents.list", []any{map[string]any{"model": "m"}})
		}, true},
		{"bad dmScope", func(s *Store) { s.Set("session.dmScope", "per-galaxy") }, true},
		{"good dmScope", func(s *Store) { s.Set("session.dmScope", "per-channel-peer") }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTemp(t)
			tt.mutate(s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAgentGetFallbackChain(t *testing.T) {
	s := openTemp(t)
	s.Set("agents.defaults.model", "default-model")
	s.Set("agents.list", []any{
		map[string]any{"id": "main"},
		map[string]any{"id": "coder", "model": "coder-model"},
	})

	if got := s.AgentGetString("coder", "model", ""); got != "coder-model" {
		t.Errorf("coder model = %q", got)
	}
	if got := s.AgentGetString("main", "model", ""); got != "default-model" {
		t.Errorf("main model = %q, want defaults fallback", got)
	}
	if got := s.AgentGetString("ghost", "model", ""); got != "default-model" {
		t.Errorf("unknown agent model = %q, want defaults fallback", got)
	}
	if got := s.AgentGetString("main", "voice", "none"); got != "none" {
		t.Errorf("missing field = %q, want caller default", got)
	}
}

func TestChannelGetFallbackChain(t *testing.T) {
	s := openTemp(t)
	s.Set("channels.defaults.historyLimit", 10)
	s.Set("channels.telegram.historyLimit", 25)

	if got := s.ChannelGet("telegram", "historyLimit", nil); got.(float64) != 25 {
		t.Errorf("telegram = %v", got)
	}
	if got := s.ChannelGet("discord", "historyLimit", nil); got.(float64) != 10 {
		t.Errorf("discord fallback = %v", got)
	}
	if got := s.ChannelGet("discord", "nope", "dflt"); got != "dflt" {
		t.Errorf("missing = %v", got)
	}
}

func TestBackupRotation(t *testing.T) {
	s := openTemp(t)
	s.Set("a", 1)
	if err := s.Backup(); err != nil {
		t.Fatal(err)
	}
	s.Set("a", 2)
	if err := s.Backup(); err != nil {
		t.Fatal(err)
	}

	b1, err := os.ReadFile(s.Path() + ".bak.1")
	if err != nil {
		t.Fatalf("bak.1 missing: %v", err)
	}
	b2, err := os.ReadFile(s.Path() + ".bak.2")
	if err != nil {
		t.Fatalf("bak.2 missing: %v", err)
	}
	if string(b1) == string(b2) {
		t.Error("bak.1 and bak.2 should differ after two backups")
	}
}

func TestTreeMasksSecrets(t *testing.T) {
	s := openTemp(t)
	s.Set("gateway.auth.token", "real-token")
	s.Set("gateway.port", 8080)

	tree := s.Tree(true)
	gw := tree["gateway"].(map[string]any)
	auth := gw["auth"].(map[string]any)
	if auth["token"] != "***" {
		t.Errorf("token = %v, want masked", auth["token"])
	}
	if gw["port"].(float64) != 8080 {
		t.Errorf("port should not be masked")
	}
}
