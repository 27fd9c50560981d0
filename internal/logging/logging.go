// Package logging configures the process-wide slog handler.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default slog handler according to LOG_LEVEL
// (silent, debug, info, warn, error). verbose forces debug.
func Setup(verbose bool) {
	level := strings.ToLower(os.Getenv("LOG_LEVEL"))
	if verbose {
		level = "debug"
	}

	var out io.Writer = os.Stderr
	var lv slog.Level
	switch level {
	case "silent":
		out = io.Discard
		lv = slog.LevelError
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lv})))
}
