// Package logging wires the process-wide zerolog logger. The teacher bot
// logs with bare log.Printf; a multi-task pipeline with reorgs, gaps, and
// quarantine events needs structured, leveled, field-keyed logs instead,
// so every component logs through a *zerolog.Logger injected at
// construction rather than the global logger.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console-friendly logger in development and a plain JSON
// logger otherwise, matching zerolog's documented split.
func New(component string, pretty bool) zerolog.Logger {
	var w zerolog.ConsoleWriter
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Str("component", component).Logger()
}
