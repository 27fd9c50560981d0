package config

import (
	"errors"
	"fmt"

	"github.com/bashclaw/bashclaw/internal/util"
)

var dmScopes = map[string]bool{
	"per-channel":      true,
	"per-sender":       true,
	"per-channel-peer": true,
	"global":           true,
}

// Validate checks the cached tree and returns every problem found, joined.
// A nil return means the config is usable.
func (s *Store) Validate() error {
	var problems []error

	if v, ok := s.Get("gateway.port"); ok {
		n, isNum := v.(float64)
		if !isNum || n != float64(int(n)) {
			problems = append(problems, fmt.Errorf("gateway.port must be an integer, got %v", v))
		} else if int(n) < 1 || int(n) > 65535 {
			problems = append(problems, fmt.Errorf("gateway.port out of range [1,65535]: %d", int(n)))
		}
	}

	if list, ok := s.Get("agents.list"); ok {
		entries, isList := list.([]any)
		if !isList {
			problems = append(problems, errors.New("agents.list must be an array"))
		} else {
			for i, e := range entries {
				m, isObj := e.(map[string]any)
				if !isObj {
					problems = append(problems, fmt.Errorf("agents.list[%d] must be an object", i))
					continue
				}
				if id, _ := m["id"].(string); id == "" {
					problems = append(problems, fmt.Errorf("agents.list[%d] missing id", i))
				}
			}
		}
	}

	if scope := s.GetString("session.dmScope", ""); scope != "" && !dmScopes[scope] {
		problems = append(problems, fmt.Errorf("session.dmScope %q not one of per-channel, per-sender, per-channel-peer, global", scope))
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", util.ErrConfigInvalid, errors.Join(problems...))
}
