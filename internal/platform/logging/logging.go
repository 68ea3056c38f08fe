// Package logging wires the process-wide zerolog logger, following the
// split cmd/cryptorun/main.go makes between an interactive console writer
// and structured JSON for non-TTY / batch runs.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Init configures the global zerolog logger. verbose raises the level to
// debug; when stderr is a TTY it uses a human-readable console writer,
// otherwise structured JSON lines (suitable for log aggregation).
func Init(verbose bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// WithKey returns a logger annotated with the identifying key spec.md §7
// requires on every error log line (url, harvest_id, asset, model, ...).
func WithKey(fields map[string]string) zerolog.Logger {
	ctx := log.Logger.With()
	for k, v := range fields {
		ctx = ctx.Str(k, v)
	}
	return ctx.Logger()
}
