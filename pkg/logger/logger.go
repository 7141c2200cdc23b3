package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey struct{}

type connInfo struct {
	id     uint64
	remote string
}

func Setup(level string, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level string, format string) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithConnID tags ctx with the connection identity used by FromContext.
func WithConnID(ctx context.Context, id uint64, remoteAddr string) context.Context {
	return context.WithValue(ctx, contextKey{}, connInfo{id: id, remote: remoteAddr})
}

func ConnID(ctx context.Context) (uint64, bool) {
	info, ok := ctx.Value(contextKey{}).(connInfo)
	return info.id, ok
}

func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if info, ok := ctx.Value(contextKey{}).(connInfo); ok {
		logger = logger.With("conn_id", info.id, "remote_addr", info.remote)
	}
	return logger
}

func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
