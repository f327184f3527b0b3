package coach

import (
	"context"
	"fmt"
)

// MockGenerator answers without calling any provider. It is used for local
// development when no API key is configured.
type MockGenerator struct{}

// NewMockGenerator returns a MockGenerator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate echoes the message back in the coach's voice.
func (m *MockGenerator) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", asProviderError(ctx, err)
	}
	return fmt.Sprintf("I hear you: %q. Pick the one step today that moves your biggest goal forward, and protect the time for it.", req.Content), nil
}
