package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig holds the process-wide provider settings.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration // per call; 0 disables the client-side deadline

	// BaseURL and HTTPClient override the transport, mainly for tests.
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiClient is the Generator backed by the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// Ensure GeminiClient implements Generator.
var _ Generator = (*GeminiClient)(nil)

// NewGeminiClient builds the client once at startup. A missing API key is a
// configuration error, not a per-call failure.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("gemini model is required")
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	logger.Info("Gemini client ready", "model", cfg.Model, "timeout", cfg.Timeout)

	return &GeminiClient{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *GeminiClient) Model() string { return c.model }

// Generate performs exactly one generateContent call.
func (c *GeminiClient) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	temp := req.Temperature
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
		Temperature:       &temp,
	}

	start := time.Now()
	res, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Content), cfg)
	if err != nil {
		c.logger.Debug("generateContent failed", "model", c.model, "elapsed", time.Since(start), "error", err)
		return "", asProviderError(ctx, err)
	}
	if res == nil {
		return "", &ProviderError{Reason: ReasonEmptyResponse, Err: errors.New("nil response")}
	}

	c.logger.Debug("generateContent ok", "model", c.model, "elapsed", time.Since(start))
	return res.Text(), nil
}
