// Package logging holds the process logger of the zolltools CLI.
//
// Logs are JSON lines on stderr unless --human asks for console output;
// --debug lowers the level so that per-file and per-chunk events show.
// Pipeline packages take their logger from the context (internal/logctx)
// and fall back to L.
package logging

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger *zerolog.Logger
	pretty atomic.Bool
)

func init() {
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger = &l
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Options mirrors the logging flags of the CLI.
type Options struct {
	// Debug enables debug events (--debug).
	Debug bool

	// Human switches to the console writer and adds "_h" companions to
	// size and count fields of completion events (--human).
	Human bool

	// Out receives the log. Defaults to os.Stderr.
	Out io.Writer
}

// Init replaces the process logger according to opts.
func Init(opts Options) {
	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.Human {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	SetPrettyMode(opts.Human)

	l := zerolog.New(out).With().Timestamp().Logger()
	logger = &l
}

// L returns the process logger.
func L() *zerolog.Logger {
	return logger
}

// WithPhase returns the process logger with "phase" set.
func WithPhase(phase string) zerolog.Logger {
	return logger.With().Str("phase", phase).Logger()
}

// SetLogger overrides the process logger.
func SetLogger(l zerolog.Logger) {
	logger = &l
}

// SetPrettyMode toggles human-readable companion fields.
func SetPrettyMode(on bool) {
	pretty.Store(on)
}

// IsPrettyMode reports whether human-readable companion fields are emitted.
func IsPrettyMode() bool {
	return pretty.Load()
}
