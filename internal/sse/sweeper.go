package sse

import (
	"context"
	"log/slog"
	"time"
)

// StartSweeper closes bindings older than maxAge every interval until ctx is
// done. The returned channel is closed when the worker exits.
func StartSweeper(ctx context.Context, reg *Registry, interval, maxAge time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		slog.Info("Channel sweeper started", "channel", reg.name, "interval", interval, "max_age", maxAge)
		for {
			select {
			case <-ctx.Done():
				slog.Info("Channel sweeper stopped", "channel", reg.name)
				return
			case <-ticker.C:
				if n := reg.CloseOlderThan(time.Now().Add(-maxAge)); n > 0 {
					slog.Info("Closed expired channels", "channel", reg.name, "count", n)
				}
			}
		}
	}()
	return done
}
