package hooks

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadDir registers executable scripts found in dir using a header-comment
// declaration syntax:
//
//	# hook:<event>
//	# priority:<n>      (optional)
//	# strategy:<name>   (optional, defaults per event)
//
// Files without a "# hook:" header are ignored. Returns how many hooks were
// registered.
func (d *Dispatcher) LoadDir(dir string) (int, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("hooks: load dir: %w", err)
	}

	loaded := 0
	for _, it := range items {
		if it.IsDir() || strings.HasSuffix(it.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, it.Name())
		h, ok := parseHeader(path)
		if !ok {
			continue
		}
		h.Name = strings.TrimSuffix(it.Name(), filepath.Ext(it.Name()))
		h.Script = path
		h.Enabled = true
		if err := d.Register(h); err != nil {
			slog.Warn("hooks: skipping script", "file", it.Name(), "error", err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

// parseHeader scans the leading comment block of a script for hook
// declarations.
func parseHeader(path string) (Hook, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Hook{}, false
	}
	defer f.Close()

	var h Hook
	found := false
	sc := bufio.NewScanner(f)
	for i := 0; sc.Scan() && i < 20; i++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#!") {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			break
		}
		body := strings.TrimSpace(strings.TrimPrefix(line, "#"))
		switch {
		case strings.HasPrefix(body, "hook:"):
			h.Event = strings.TrimSpace(strings.TrimPrefix(body, "hook:"))
			found = true
		case strings.HasPrefix(body, "priority:"):
			if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(body, "priority:"))); err == nil {
				h.Priority = n
			}
		case strings.HasPrefix(body, "strategy:"):
			h.Strategy = strings.TrimSpace(strings.TrimPrefix(body, "strategy:"))
		}
	}
	return h, found
}
