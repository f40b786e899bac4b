package logger

import (
	"log/slog"
	"os"
)

// New returns the root structured logger. Level defaults to info;
// RISKGRAPH_LOG_LEVEL=debug flips on debug output.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("RISKGRAPH_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
