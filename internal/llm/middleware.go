package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

func (f ClientFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// WithThrottle limits the request rate across all callers sharing next.
// A non-positive rps returns next unchanged.
func WithThrottle(next Client, rps float64, burst int) Client {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return ClientFunc(func(ctx context.Context, req Request) (*Response, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return next.Complete(ctx, req)
	})
}

// RetryPolicy controls WithRateLimitRetry.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// WithRateLimitRetry retries calls rejected with HTTP 429. Every other error,
// and the last 429 once retries run out, is returned unchanged.
func WithRateLimitRetry(next Client, policy RetryPolicy, logger *zap.Logger) Client {
	if policy.MaxRetries == 0 {
		return next
	}
	logger = logger.Named("llm.retry")
	return ClientFunc(func(ctx context.Context, req Request) (*Response, error) {
		b := backoff.NewExponentialBackOff()
		if policy.InitialInterval > 0 {
			b.InitialInterval = policy.InitialInterval
		}
		if policy.MaxInterval > 0 {
			b.MaxInterval = policy.MaxInterval
		}
		b.MaxElapsedTime = 0

		var resp *Response
		operation := func() error {
			var err error
			resp, err = next.Complete(ctx, req)
			if err == nil {
				return nil
			}
			if !IsRateLimited(err) {
				return backoff.Permanent(err)
			}
			logger.Warn("rate limited, backing off",
				zap.String("request_id", req.RequestID),
				zap.Error(err),
			)
			return err
		}

		err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, policy.MaxRetries), ctx))
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
}

// IsRateLimited reports whether err is a provider 429.
func IsRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return geminiErr.Code == http.StatusTooManyRequests
	}
	return false
}
