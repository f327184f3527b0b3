package coach

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryGenerator retries failed generations with exponential backoff. With
// MaxRetries == 0 it is a pass-through and makes exactly one call.
type RetryGenerator struct {
	next       Generator
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewRetryGenerator wraps next.
func NewRetryGenerator(next Generator, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *RetryGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryGenerator{
		next:       next,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// Generate implements Generator.
func (r *RetryGenerator) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		text, err := r.next.Generate(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !retryable(ctx, err) || attempt == r.maxRetries {
			break
		}

		delay := r.baseDelay * time.Duration(1<<attempt)
		r.logger.Debug("generation failed, retrying",
			"attempt", attempt+1,
			"delay", delay,
			"error", err)
		if err := r.sleep(ctx, delay); err != nil {
			return "", asProviderError(ctx, err)
		}
	}
	return "", asProviderError(ctx, lastErr)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Reason == ReasonCanceled {
		return false
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
