package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type fileKey struct{}

type fileIdentity struct {
	metaID int64
	fileID int64
}

func Setup(level string, format string) {
	slog.SetDefault(New(os.Stderr, level, format))
}

// New builds a logger writing to w. Setup installs one on stderr so that
// stdout stays free for command output.
func New(w io.Writer, level string, format string) *slog.Logger {
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
	return slog.New(handler)
}

func WithFile(ctx context.Context, metaID, fileID int64) context.Context {
	return context.WithValue(ctx, fileKey{}, fileIdentity{metaID: metaID, fileID: fileID})
}

func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if id, ok := ctx.Value(fileKey{}).(fileIdentity); ok {
		logger = logger.With("meta_id", id.metaID, "file_id", id.fileID)
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
