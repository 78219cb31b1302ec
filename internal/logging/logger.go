// Package logging is the structured logger shared by the offline store,
// the synchronizer and the CLI. Records can be written through slog or
// zerolog; fields attached to a context follow every record logged with it.
package logging

import (
	"context"
	"slices"
)

// Logger is a context-aware, structured logger. Args are key/value pairs:
//
//	log.Info(ctx, "tiles cached", "trip_id", id, "cached", n)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes args.
	With(args ...any) Logger
}

type fieldsKey struct{}

// WithFields returns a context whose log records carry args after the
// logger's own fields. Calls accumulate.
func WithFields(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	return context.WithValue(ctx, fieldsKey{}, slices.Concat(fieldsOf(ctx), args))
}

func fieldsOf(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(fieldsKey{}).([]any)
	return f
}

// withContext prepends the context fields to args.
func withContext(ctx context.Context, args []any) []any {
	f := fieldsOf(ctx)
	if len(f) == 0 {
		return args
	}
	return slices.Concat(f, args)
}

// Nop returns a logger that discards everything.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) Logger                  { return n }
