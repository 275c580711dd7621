// Package internal holds process-level plumbing shared by the binaries.
package internal

import (
	"log/slog"
	"os"
	"strings"
)

// LoggerFromString builds a text logger from a level name. Anything
// unrecognized falls back to info.
func LoggerFromString(level string) *slog.Logger {
	return LoggerFromLevel(parseLevel(level))
}

// LoggerFromLevel builds a text logger writing to stderr.
func LoggerFromLevel(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
