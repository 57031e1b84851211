// Package logging builds clockboundd's structured logger. No third-party structured-logging library
// appears anywhere in the example corpus this repo was grounded on, so
// this is the one ambient concern built directly on the standard
// library's log/slog rather than an imported package.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// New builds a slog.Logger writing to w. json selects the handler: true
// for machine-readable JSON logs (spec SUPPLEMENTED FEATURES:
// "--log-json"), false for human-readable text. level is parsed case-insensitively; an
// unrecognized level falls back to Info.
func New(w io.Writer, level string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
