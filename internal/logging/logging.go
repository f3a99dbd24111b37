package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup returns a JSON slog logger writing to w at level.
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// SetupDefault installs a JSON logger as the process-wide default and returns it.
func SetupDefault(w io.Writer, level slog.Level) *slog.Logger {
	logger := Setup(w, level)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// LevelFromEnv parses the level named by the environment variable key, falling back to
// info when it is unset or invalid.
func LevelFromEnv(key string) slog.Level {
	lvl, err := ParseLevel(os.Getenv(key))
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}
