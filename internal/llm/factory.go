package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-inference/internal/config"
)

var ErrUnsupportedProvider = errors.New("unsupported LLM provider")

// NewClient resolves the configured provider and wraps it with the optional
// throttle and rate-limit retry layers.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	httpClient := &http.Client{Timeout: cfg.APITimeout}

	var (
		client Client
		err    error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		client, err = NewOpenAIClient(OpenAIOptions{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			HTTPClient: httpClient,
		}, logger)
	case config.ProviderGemini:
		client, err = NewGeminiClient(ctx, GeminiOptions{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			HTTPClient: httpClient,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: %q (supported: %s, %s)", ErrUnsupportedProvider, cfg.Provider, config.ProviderOpenAI, config.ProviderGemini)
	}
	if err != nil {
		return nil, err
	}

	client = WithRateLimitRetry(client, RetryPolicy{
		MaxRetries:      uint64(cfg.RateLimitRetries),
		InitialInterval: cfg.RateLimitBackoff,
	}, logger)
	client = WithThrottle(client, cfg.RequestsPerSecond, 1)
	return client, nil
}

// ParamsFromConfig returns the fixed generation policy for every request.
func ParamsFromConfig(cfg config.LLMConfig) Params {
	return Params{
		Model:            cfg.Model,
		Temperature:      cfg.Temperature,
		TopP:             cfg.TopP,
		FrequencyPenalty: cfg.FrequencyPenalty,
		PresencePenalty:  cfg.PresencePenalty,
	}
}
