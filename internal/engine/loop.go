package engine

import (
	"context"
	"log/slog"
	"time"
)

// Kick requests a drain pass from the background loop. Non-blocking;
// multiple kicks before the loop wakes coalesce into one pass.
func (e *Engine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Run is the background sync loop: it drains the queue on a fixed
// interval and whenever Kick is called (connectivity regained, a write
// just queued, a manual sync request). Blocks until ctx is cancelled;
// cancellation also tears down an in-flight pass at the next operation
// boundary, since each pass runs on the loop's context.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	slog.Info("sync loop starting", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync loop stopping: context cancelled")
			return ctx.Err()

		case <-ticker.C:
		case <-e.kick:
		}

		if err := e.ProcessQueue(ctx); err != nil {
			slog.Error("sync pass failed", "error", err)
		}
	}
}
