package log

import (
	"context"
	"log/slog"

	"golang.org/x/exp/slices"
)

type attrsKey struct{}

func contextAttrs(ctx context.Context) []slog.Attr {
	attrs, _ := ctx.Value(attrsKey{}).([]slog.Attr)
	return attrs
}

// ContextWithAttrs returns a child of ctx carrying attrs in addition to any
// already attached. Handlers built with NewContextLogHandler add them to
// every record logged with the returned context.
func ContextWithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	// Clip so that sibling contexts never share a backing array.
	merged := append(slices.Clip(contextAttrs(ctx)), attrs...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

type contextHandler struct {
	slog.Handler
}

// NewContextLogHandler wraps handler so that attrs stored with
// ContextWithAttrs are emitted with each record.
func NewContextLogHandler(handler slog.Handler) slog.Handler {
	return contextHandler{handler}
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := contextAttrs(ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}
