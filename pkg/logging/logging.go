package logging

import (
	"context"
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey struct{}

// ContextHandler adds the attributes stored in the context to every record.
type ContextHandler struct {
	slog.Handler
}

// Handle adds the context attributes to the record
func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs, ok := ctx.Value(ctxKey{}).([]slog.Attr); ok {
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{h.Handler.WithAttrs(attrs)}
}

func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{h.Handler.WithGroup(name)}
}

// AppendCtx returns a child context carrying attrs in addition to the ones
// already stored in parent.
func AppendCtx(parent context.Context, attrs ...slog.Attr) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	var all []slog.Attr
	if v, ok := parent.Value(ctxKey{}).([]slog.Attr); ok {
		all = append(all, v...)
	}
	all = append(all, attrs...)
	return context.WithValue(parent, ctxKey{}, all)
}

// Logger builds a text or json logger writing to w
func Logger(w io.Writer, json bool, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if json {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(ContextHandler{h})
}

// RotatingWriter is a size-rotated log file. sizeMB and backups of 0 use
// the lumberjack defaults.
func RotatingWriter(path string, sizeMB, backups int) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    sizeMB,
		MaxBackups: backups,
		Compress:   true,
	}
}
