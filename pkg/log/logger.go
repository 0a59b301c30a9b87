package log

import (
	"io"
	"log/slog"
	"os"
)

// New constructs the service's JSON logger at info level
func New(service, env, version string) *slog.Logger {
	return NewWithLevel(service, env, version, slog.LevelInfo)
}

// NewWithLevel constructs the service's JSON logger at the given level,
// writing to stdout
func NewWithLevel(service, env, version string, lvl slog.Level) *slog.Logger {
	return NewWithOutput(os.Stdout, service, env, version, lvl)
}

// NewWithOutput constructs the service's JSON logger writing to w. The
// env attr is omitted when unset so local runs stay uncluttered
func NewWithOutput(
	w io.Writer, service, env, version string, lvl slog.Level,
) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
	})

	attrs := []any{
		slog.String("service", service),
		slog.String("version", version),
	}
	if env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	return slog.New(handler).With(attrs...)
}
