package autoreply

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/bashclaw/bashclaw/internal/util"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "autoreply.json"))
}

func TestCheckPriorityOrder(t *testing.T) {
	s := newTestStore(t)
	s.Add(Rule{ID: "generic", Pattern: "help", Response: "generic help", Priority: 10})
	s.Add(Rule{ID: "specific", Pattern: "help", Response: "priority help", Priority: 1})

	resp, ok := s.Check("I need help here", "web")
	if !ok || resp != "priority help" {
		t.Errorf("Check = %q, %v; lowest priority must win", resp, ok)
	}
}

func TestCheckAlternation(t *testing.T) {
	s := newTestStore(t)
	s.Add(Rule{Pattern: "hi|hello|hey", Response: "greetings", Priority: 1})

	for _, msg := range []string{"hello there", "HEY you", "oh hi"} {
		if resp, ok := s.Check(msg, ""); !ok || resp != "greetings" {
			t.Errorf("Check(%q) = %q, %v", msg, resp, ok)
		}
	}
	if _, ok := s.Check("goodbye", ""); ok {
		t.Error("non-matching message matched")
	}
}

func TestCheckRegexNeverHonoured(t *testing.T) {
	s := newTestStore(t)
	s.Add(Rule{Pattern: "a.*b", Response: "regex?", Priority: 1})
	s.Add(Rule{Pattern: "[abc]+", Response: "class?", Priority: 2})

	// Metacharacters only match themselves.
	if _, ok := s.Check("axxxb", ""); ok {
		t.Error("dot-star was treated as a regex")
	}
	if _, ok := s.Check("aaa", ""); ok {
		t.Error("character class was treated as a regex")
	}
	if resp, ok := s.Check("literal a.*b here", ""); !ok || resp != "regex?" {
		t.Errorf("literal metacharacter text should match: %q, %v", resp, ok)
	}
}

func TestCheckEmptyMessageNeverMatches(t *testing.T) {
	s := newTestStore(t)
	s.Add(Rule{Pattern: "anything|", Response: "x", Priority: 1})
	for _, msg := range []string{"", "   "} {
		if _, ok := s.Check(msg, ""); ok {
			t.Errorf("empty message %q matched", msg)
		}
	}
}

func TestChannelBinding(t *testing.T) {
	s := newTestStore(t)
	s.Add(Rule{Pattern: "ping", Response: "pong-telegram", Priority: 1, Channel: "telegram"})
	s.Add(Rule{Pattern: "ping", Response: "pong-any", Priority: 2})

	if resp, _ := s.Check("ping", "telegram"); resp != "pong-telegram" {
		t.Errorf("telegram channel = %q", resp)
	}
	if resp, _ := s.Check("ping", "web"); resp != "pong-any" {
		t.Errorf("other channel = %q", resp)
	}
}

func TestAddRemove(t *testing.T) {
	s := newTestStore(t)
	if err := s.Add(Rule{Pattern: "  ", Response: "x"}); !errors.Is(err, util.ErrValidation) {
		t.Errorf("blank pattern = %v", err)
	}

	s.Add(Rule{ID: "r1", Pattern: "x", Response: "y"})
	if err := s.Remove("r1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove("r1"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("double remove = %v", err)
	}
	if _, ok := s.Check("x marks the spot", ""); ok {
		t.Error("removed rule still matches")
	}
}
