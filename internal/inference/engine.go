// Package inference turns an instruction and a page's element list into
// typed decisions by delegating reasoning to an llm.Client.
//
// Engine holds only immutable configuration, so one Engine may serve any
// number of concurrent calls.
package inference

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-inference/internal/config"
	"github.com/nbenliogludev/go-browser-inference/internal/llm"
)

// ErrNoObservation is returned when the model gives no observation at all.
var ErrNoObservation = errors.New("no response when finding a selector")

// DefaultParams is the sampling policy used when none is configured.
var DefaultParams = llm.Params{
	Temperature: 0.1,
	TopP:        1,
}

// ActRetryPolicy bounds the action resolver's retries and decides which
// optional inputs are resent on a retry.
type ActRetryPolicy struct {
	MaxRetries        int
	ForwardScreenshot bool
	ForwardVariables  bool
}

// DefaultActRetryPolicy allows two retries and resends only the text inputs.
var DefaultActRetryPolicy = ActRetryPolicy{MaxRetries: 2}

// Engine runs the inference operations against one llm.Client.
type Engine struct {
	client   llm.Client
	params   llm.Params
	actRetry ActRetryPolicy
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithParams(p llm.Params) Option {
	return func(e *Engine) { e.params = p }
}

func WithActRetryPolicy(p ActRetryPolicy) Option {
	return func(e *Engine) { e.actRetry = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func NewEngine(client llm.Client, opts ...Option) *Engine {
	e := &Engine{
		client:   client,
		params:   DefaultParams,
		actRetry: DefaultActRetryPolicy,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("inference")
	return e
}

// NewEngineFromConfig wires the configured sampling and retry policy.
func NewEngineFromConfig(client llm.Client, cfg *config.Config, logger *zap.Logger) *Engine {
	return NewEngine(client,
		WithParams(llm.ParamsFromConfig(cfg.LLM)),
		WithActRetryPolicy(ActRetryPolicy{
			MaxRetries:        cfg.Inference.Act.MaxRetries,
			ForwardScreenshot: cfg.Inference.Act.RetryWithScreenshot,
			ForwardVariables:  cfg.Inference.Act.RetryWithVariables,
		}),
		WithLogger(logger),
	)
}

func (e *Engine) complete(ctx context.Context, requestID string, messages []llm.Message, opts ...func(*llm.Request)) (*llm.Response, error) {
	req := llm.Request{
		RequestID: requestID,
		Messages:  messages,
		Params:    e.params,
	}
	for _, o := range opts {
		o(&req)
	}
	return e.client.Complete(ctx, req)
}

func withImage(data []byte, description string) func(*llm.Request) {
	return func(r *llm.Request) {
		if len(data) > 0 {
			r.Image = &llm.Image{Data: data, Description: description}
		}
	}
}

func withSchema(s llm.Schema) func(*llm.Request) {
	return func(r *llm.Request) { r.Schema = &s }
}

func withFunctions(fns []llm.Function) func(*llm.Request) {
	return func(r *llm.Request) {
		r.Functions = fns
		r.FunctionChoice = llm.FunctionChoiceAuto
	}
}
