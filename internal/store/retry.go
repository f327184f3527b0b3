package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	writeMaxAttempts = 3
	writeBaseDelay   = 50 * time.Millisecond
)

// isConflictError reports SQLite lock contention that is worth retrying.
func isConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withRetry runs fn with exponential backoff on lock contention:
// 50ms, 100ms, then give up.
func withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < writeMaxAttempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isConflictError(err) || i == writeMaxAttempts-1 {
			break
		}

		delay := writeBaseDelay * time.Duration(1<<i)
		slog.Debug("Database locked, retrying", "op", op, "attempt", i+1, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
