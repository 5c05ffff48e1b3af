package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-inference/internal/prompt"
)

const categoryAct = "Act"

// ActionResult is the single next step chosen by the model.
type ActionResult struct {
	Method    string   `json:"method"`
	Element   int      `json:"element"`
	Args      []string `json:"args"`
	Step      string   `json:"step"`
	Why       string   `json:"why,omitempty"`
	Completed bool     `json:"completed"`
}

// UnmarshalJSON accepts an integral element number written as a float, so
// "element": 3.0 decodes to 3.
func (a *ActionResult) UnmarshalJSON(data []byte) error {
	type plain ActionResult
	aux := struct {
		*plain
		Element float64 `json:"element"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	n, err := elementNumber(aux.Element)
	if err != nil {
		return err
	}
	a.Element = n
	return nil
}

// WithVariables returns a copy whose args have placeholders filled in.
func (a ActionResult) WithVariables(variables map[string]string) ActionResult {
	out := a
	if a.Args != nil {
		out.Args = make([]string, len(a.Args))
		for i, arg := range a.Args {
			out.Args[i] = FillInVariables(arg, variables)
		}
	}
	return out
}

type ActInput struct {
	Action      string
	Steps       string
	DOMElements string
	Screenshot  []byte
	Variables   map[string]string
	// Retries is the number of attempts already spent by the caller.
	Retries   int
	RequestID string
}

// Act resolves the next action. It returns nil, nil when the model skips the
// section or keeps answering without a usable function call.
func (e *Engine) Act(ctx context.Context, in ActInput) (*ActionResult, error) {
	attempt := in
	for {
		result, skipped, err := e.actOnce(ctx, attempt)
		if err != nil {
			return nil, err
		}
		if skipped {
			return nil, nil
		}
		if result != nil {
			return result, nil
		}

		if attempt.Retries >= e.actRetry.MaxRetries {
			e.logger.Warn("No tool calls found in response",
				zap.String("category", categoryAct),
				zap.String("request_id", in.RequestID),
				zap.Int("retries", attempt.Retries),
			)
			return nil, nil
		}
		attempt = e.retryInput(in, attempt.Retries+1)
	}
}

// retryInput keeps the textual essentials; screenshot and variables follow
// the retry policy.
func (e *Engine) retryInput(in ActInput, retries int) ActInput {
	next := ActInput{
		Action:      in.Action,
		Steps:       in.Steps,
		DOMElements: in.DOMElements,
		Retries:     retries,
		RequestID:   in.RequestID,
	}
	if e.actRetry.ForwardScreenshot {
		next.Screenshot = in.Screenshot
	}
	if e.actRetry.ForwardVariables {
		next.Variables = in.Variables
	}
	return next
}

func (e *Engine) actOnce(ctx context.Context, in ActInput) (result *ActionResult, skipped bool, err error) {
	resp, err := e.complete(ctx, in.RequestID,
		prompt.Act(in.Action, in.Steps, in.DOMElements, in.Variables),
		withImage(in.Screenshot, prompt.AnnotatedScreenshotText),
		withFunctions(prompt.ActFunctions()),
	)
	if err != nil {
		return nil, false, err
	}
	if resp == nil || resp.FunctionCall == nil {
		return nil, false, nil
	}

	switch resp.FunctionCall.Name {
	case prompt.SkipSectionFunction:
		e.logger.Debug("model skipped section",
			zap.String("category", categoryAct),
			zap.String("request_id", in.RequestID),
			zap.ByteString("arguments", resp.FunctionCall.Arguments),
		)
		return nil, true, nil

	case prompt.DoActionFunction:
		action, err := decodeAction(resp.FunctionCall.Arguments)
		if err != nil {
			e.logger.Warn("Malformed doAction arguments",
				zap.String("category", categoryAct),
				zap.String("request_id", in.RequestID),
				zap.Error(err),
			)
			return nil, false, nil
		}
		return action, false, nil

	default:
		e.logger.Warn("Unknown function selected",
			zap.String("category", categoryAct),
			zap.String("request_id", in.RequestID),
			zap.String("function", resp.FunctionCall.Name),
		)
		return nil, false, nil
	}
}

func decodeAction(args json.RawMessage) (*ActionResult, error) {
	var action ActionResult
	if err := json.Unmarshal(args, &action); err != nil {
		return nil, fmt.Errorf("decode doAction arguments: %w", err)
	}
	if action.Method == "" {
		return nil, fmt.Errorf("doAction arguments missing method")
	}
	return &action, nil
}

func elementNumber(f float64) (int, error) {
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("element number %v is not an integer", f)
	}
	return int(f), nil
}
