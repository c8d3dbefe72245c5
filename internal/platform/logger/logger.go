package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New returns a structured logger. Local runs get human-readable text output;
// every other environment emits JSON.
func New(environment string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFromEnv()}
	if environment == "local" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
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
