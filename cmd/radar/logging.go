package main

import (
	"log/slog"
	"os"

	"github.com/pauljones0/deal-radar/internal/app"
	"github.com/pauljones0/deal-radar/internal/config"
)

// Logs go to stderr so command output on stdout stays readable.
func setLogger(cfg *config.Config) {
	slog.SetDefault(app.NewLogger(cfg, os.Stderr))
}
