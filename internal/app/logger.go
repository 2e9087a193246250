package app

import (
	"io"
	"log/slog"

	"github.com/albapepper/hifz-notify/internal/config"
)

// NewLogger builds the process logger: JSON lines in production for the log
// collector, human-readable text elsewhere.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
