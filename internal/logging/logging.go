// Package logging wires up structured logging the way the teacher
// repo does: a slog.Logger backed by hermannm.dev/devlog's
// human-readable handler. The same handler is used in every
// environment; there is no JSON output mode.
package logging

import (
	"log/slog"
	"os"

	"hermannm.dev/devlog"
)

// Setup installs a process-wide slog default logger and returns it.
// env controls verbosity: "development" logs at Debug, anything else
// logs at Info.
func Setup(env string) *slog.Logger {
	level := slog.LevelInfo
	if env == "development" {
		level = slog.LevelDebug
	}

	handler := devlog.NewHandler(os.Stderr, &devlog.Options{
		Level: level,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
