package pilot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// logTap is a slog.Handler that forwards records to next and mirrors a
// one-line rendering onto a channel for the operator view. Lines are dropped
// when the channel is full.
type logTap struct {
	next  slog.Handler
	ch    chan<- string
	level slog.Leveler
}

func newLogTap(next slog.Handler, ch chan<- string, level slog.Leveler) *logTap {
	return &logTap{next: next, ch: ch, level: level}
}

func (t *logTap) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= t.level.Level() || t.next.Enabled(ctx, level)
}

func (t *logTap) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= t.level.Level() {
		t.mirror(r)
	}
	if t.next.Enabled(ctx, r.Level) {
		return t.next.Handle(ctx, r)
	}
	return nil
}

func (t *logTap) mirror(r slog.Record) {
	var sb strings.Builder
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	fmt.Fprintf(&sb, "[%s] %s", ts.Format("15:04:05"), r.Message)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "error" || a.Key == "command" || a.Key == "distance" || a.Key == "reason" {
			fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
		}
		return true
	})

	select {
	case t.ch <- sb.String():
	default:
		// Drop if channel full
	}
}

func (t *logTap) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &logTap{next: t.next.WithAttrs(attrs), ch: t.ch, level: t.level}
}

func (t *logTap) WithGroup(name string) slog.Handler {
	return &logTap{next: t.next.WithGroup(name), ch: t.ch, level: t.level}
}
