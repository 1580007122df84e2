package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Handler is a slog.Handler that passes every record to an inner
// handler and also publishes it to a Stream as a KindLog event.
type Handler struct {
	inner  slog.Handler
	stream *Stream
	prefix string
	attrs  []slog.Attr
}

// NewHandler wraps inner. A nil inner only publishes.
func NewHandler(inner slog.Handler, stream *Stream) *Handler {
	return &Handler{inner: inner, stream: stream}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.inner == nil {
		return level >= slog.LevelInfo
	}
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.inner != nil {
		err = h.inner.Handle(ctx, r)
	}
	h.stream.Publish(Event{
		Kind:    KindLog,
		Time:    r.Time,
		Level:   r.Level,
		Message: h.format(r),
	})
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	if h.inner != nil {
		next.inner = h.inner.WithAttrs(attrs)
	}
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	return next
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	if h.inner != nil {
		next.inner = h.inner.WithGroup(name)
	}
	next.prefix = h.prefix + name + "."
	return next
}

func (h *Handler) clone() *Handler {
	return &Handler{
		inner:  h.inner,
		stream: h.stream,
		prefix: h.prefix,
		attrs:  append([]slog.Attr(nil), h.attrs...),
	}
}

// format renders "message key=value ..." for display in a host UI.
func (h *Handler) format(r slog.Record) string {
	var b strings.Builder
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	return b.String()
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, g := range a.Value.Group() {
			writeAttr(b, prefix+a.Key+".", g)
		}
		return
	}
	v := a.Value.String()
	if strings.ContainsAny(v, " \t\n\"=") {
		v = fmt.Sprintf("%q", v)
	}
	fmt.Fprintf(b, " %s%s=%s", prefix, a.Key, v)
}
