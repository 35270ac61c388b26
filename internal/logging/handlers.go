package logging

import (
	"context"
	"errors"
	"log/slog"
)

// FanoutHandler sends every record to each of its children.
type FanoutHandler struct {
	children []slog.Handler
}

// NewMultiHandler creates a fanout over the non-nil handlers given.
func NewMultiHandler(handlers ...slog.Handler) *FanoutHandler {
	f := &FanoutHandler{}
	for _, h := range handlers {
		if h == nil {
			continue
		}
		f.children = append(f.children, h)
	}
	return f
}

func (f *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for i := range f.children {
		if f.children[i].Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers r to every enabled child. A failing child does not stop
// delivery to the rest; their errors are joined.
func (f *FanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, child := range f.children {
		if !child.Enabled(ctx, r.Level) {
			continue
		}
		if err := child.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f *FanoutHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f *FanoutHandler) derive(fn func(slog.Handler) slog.Handler) *FanoutHandler {
	out := &FanoutHandler{children: make([]slog.Handler, 0, len(f.children))}
	for _, h := range f.children {
		out.children = append(out.children, fn(h))
	}
	return out
}

// StateFunc reports attributes that change over the life of the process,
// such as the current frame.
type StateFunc func() []slog.Attr

// StateHandler appends the attributes from a StateFunc to each record at
// the time it is handled.
type StateHandler struct {
	next  slog.Handler
	state StateFunc
}

// NewContextHandler wraps next so every record carries state().
func NewContextHandler(next slog.Handler, state StateFunc) *StateHandler {
	return &StateHandler{next: next, state: state}
}

func (h *StateHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *StateHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.state != nil {
		if attrs := h.state(); len(attrs) > 0 {
			r.AddAttrs(attrs...)
		}
	}
	return h.next.Handle(ctx, r)
}

func (h *StateHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &StateHandler{next: h.next.WithAttrs(attrs), state: h.state}
}

func (h *StateHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &StateHandler{next: h.next.WithGroup(name), state: h.state}
}
