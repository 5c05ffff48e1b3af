package inference

import (
	"context"

	"github.com/nbenliogludev/go-browser-inference/internal/llm"
	"github.com/nbenliogludev/go-browser-inference/internal/prompt"
)

type AskInput struct {
	Question  string
	RequestID string
}

// Ask returns the model's raw reply to a question.
func (e *Engine) Ask(ctx context.Context, in AskInput) (string, error) {
	resp, err := e.complete(ctx, in.RequestID, prompt.Ask(in.Question))
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", llm.ErrNoChoices
	}
	return resp.Text, nil
}
