package application

import (
	"log/slog"
	"time"

	"firexview/cli/internal/config"
	"firexview/cli/internal/turn"
)

type StartOptions struct {
	Config config.Config
	Logger *slog.Logger
	// Dialer defaults to the coder/websocket dialer.
	Dialer turn.Dialer
	// ProgressInterval is how often watch logs graph progress.
	ProgressInterval time.Duration
}
