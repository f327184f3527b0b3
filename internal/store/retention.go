package store

import (
	"context"
	"log/slog"
	"time"
)

// StartRetentionWorker periodically deletes transcript entries older than
// retention. The returned channel is closed once the worker has stopped.
func StartRetentionWorker(ctx context.Context, repo Repository, retention, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if retention <= 0 || interval <= 0 {
		close(done)
		return done
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", interval, "retention", retention)

		for {
			select {
			case <-ticker.C:
				sweepExpiredExchanges(ctx, repo, retention)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

func sweepExpiredExchanges(ctx context.Context, repo Repository, retention time.Duration) {
	deleted, err := repo.CleanupExpiredExchanges(ctx, retention)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Retention sweep interrupted", "error", err)
			return
		}
		slog.Error("Retention worker failed to clean up exchanges", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Retention worker removed expired exchanges", "count", deleted)
	}
}
