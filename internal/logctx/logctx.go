// Package logctx carries a zerolog logger through context.Context.
//
// The conversion pipeline threads a context through every operation; the
// only thing stored in it is a logger enriched with the file and phase the
// operation is working on:
//
//	ctx = logctx.WithFile(ctx, src)
//	ctx = logctx.WithPhase(ctx, "validate")
//	log := logctx.FromContext(ctx)
//	log.Info().Msg("chunk compared")
package logctx

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Jython1415/zolltools/pkg/logging"
)

type loggerKey struct{}

// WithLogger returns a new context with the given logger attached.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext extracts the logger from the context. A nil context or one
// without a logger yields the process logger from package logging.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
			return logger
		}
	}
	return *logging.L()
}

// WithStr returns a context whose logger has the string field added.
func WithStr(ctx context.Context, key, value string) context.Context {
	return WithLogger(ctx, FromContext(ctx).With().Str(key, value).Logger())
}

// WithFile tags the logger with the file being processed.
func WithFile(ctx context.Context, path string) context.Context {
	return WithStr(ctx, "file", path)
}

// WithPhase tags the logger with the pipeline phase.
func WithPhase(ctx context.Context, phase string) context.Context {
	return WithStr(ctx, "phase", phase)
}

// WithInt returns a context whose logger has the int field added.
func WithInt(ctx context.Context, key string, value int) context.Context {
	return WithLogger(ctx, FromContext(ctx).With().Int(key, value).Logger())
}
