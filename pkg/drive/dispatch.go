package drive

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// LineSender writes one protocol line. *link.Link satisfies it.
type LineSender interface {
	SendLine(text string) error
}

// DispatchStats counts dispatched commands.
type DispatchStats struct {
	Sent   uint64
	Failed uint64
	Last   Command // last command written successfully
}

// Dispatcher writes drive commands to the link without waiting for an
// acknowledgement. Send failures are logged and dropped; the next cycle
// issues a fresh command.
type Dispatcher struct {
	out    LineSender
	logger *slog.Logger

	mu    sync.Mutex
	stats DispatchStats
}

// NewDispatcher creates a dispatcher. A nil logger uses slog.Default.
func NewDispatcher(out LineSender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{out: out, logger: logger}
}

// Dispatch sends cmd and reports whether the write succeeded.
func (d *Dispatcher) Dispatch(cmd Command) bool {
	if !cmd.Valid() {
		d.logger.Error("refusing to send invalid command", "command", cmd)
		return false
	}

	err := d.out.SendLine(cmd.String())

	d.mu.Lock()
	if err != nil {
		d.stats.Failed++
	} else {
		d.stats.Sent++
		d.stats.Last = cmd
	}
	d.mu.Unlock()

	if err != nil {
		d.logger.Error("failed to send command", "command", cmd, "error", err)
		return false
	}
	d.logger.Info("sent command", "command", cmd)
	return true
}

// Execute runs the plan in order, holding after each step. It returns
// ctx.Err() if cancelled; the remaining steps are not sent.
func (d *Dispatcher) Execute(ctx context.Context, plan []Step) error {
	for _, step := range plan {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.Dispatch(step.Command)
		if err := hold(ctx, step.Hold); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns a copy of the dispatch counters.
func (d *Dispatcher) Stats() DispatchStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func hold(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
