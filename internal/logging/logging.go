// Package logging configures the engine's structured logger and hands out
// component-scoped child loggers.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide base logger. Init must be called once before
// any component logger is derived from it.
var Logger zerolog.Logger

// Config controls the base logger's verbosity and output format.
type Config struct {
	Level      string // debug, info, warn, error
	JSONOutput bool
}

// Init sets up the global logger.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.JSONOutput {
		Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with the given component
// name, e.g. "registry", "scheduler", "worker_pool".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

func init() {
	// Sensible default so packages that log before Init runs (e.g. in
	// tests) don't panic on a zero-value Logger.
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}
