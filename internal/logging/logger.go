package logging

import (
	"log/slog"
	"os"
)

// Setup installs a JSON stdout logger. Development builds log at debug.
func Setup(appEnv string) *slog.JSONHandler {
	level := slog.LevelInfo
	if appEnv == "development" {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return handler
}
