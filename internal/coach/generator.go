// Package coach implements the AI coaching exchange: prompt composition, the
// generation client boundary and the session service that absorbs failures.
package coach

import (
	"context"
	"errors"
	"fmt"
)

// Generator sends one GenerationRequest to a text-generation provider.
// Implementations must report every failure as a *ProviderError.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// ErrProviderFailure matches every *ProviderError via errors.Is.
var ErrProviderFailure = errors.New("provider failure")

// Failure reasons. They only feed logs and events; callers recover from all
// of them the same way.
const (
	ReasonTimeout       = "timeout"
	ReasonCanceled      = "canceled"
	ReasonEmptyResponse = "empty_response"
	ReasonProvider      = "provider"
)

// ProviderError is the single failure kind a Generator returns.
type ProviderError struct {
	Reason string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider failure (%s)", e.Reason)
	}
	return fmt.Sprintf("provider failure (%s): %v", e.Reason, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is reports true for ErrProviderFailure.
func (e *ProviderError) Is(target error) bool { return target == ErrProviderFailure }

// asProviderError converts err into a *ProviderError, classifying context
// errors from ctx first.
func asProviderError(ctx context.Context, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &ProviderError{Reason: ReasonTimeout, Err: err}
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return &ProviderError{Reason: ReasonCanceled, Err: err}
	default:
		return &ProviderError{Reason: ReasonProvider, Err: err}
	}
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req GenerationRequest) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	return f(ctx, req)
}
