// Package logger holds the minimal structured logging interface the engine
// depends on, with phuslu-style, slog and no-op implementations.
package logger

// Logger accepts alternating key/value pairs as variadic arguments. The
// interface is intentionally tiny so tests can mock it.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}
