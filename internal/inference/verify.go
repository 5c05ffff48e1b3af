package inference

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-inference/internal/llm"
	"github.com/nbenliogludev/go-browser-inference/internal/prompt"
)

const categoryVerifyAct = "VerifyAct"

var verificationSchema = llm.Schema{
	Name:   "Verification",
	Strict: true,
	Definition: jsonschema.Definition{
		Type:                 jsonschema.Object,
		Required:             []string{"completed"},
		AdditionalProperties: false,
		Properties: map[string]jsonschema.Definition{
			"completed": {
				Type:        jsonschema.Boolean,
				Description: "true if the goal is accomplished",
			},
		},
	},
}

type VerifyInput struct {
	Goal        string
	Steps       string
	DOMElements string
	Screenshot  []byte
	RequestID   string
}

// VerifyActCompletion asks whether the goal has been reached. Any response
// that cannot be read as {completed: bool} counts as not completed; only
// transport errors are returned.
func (e *Engine) VerifyActCompletion(ctx context.Context, in VerifyInput) (bool, error) {
	resp, err := e.complete(ctx, in.RequestID,
		prompt.VerifyActCompletion(in.Goal, in.Steps, in.DOMElements),
		withImage(in.Screenshot, prompt.FullPageScreenshotText),
		withSchema(verificationSchema),
	)
	if err != nil {
		if errors.Is(err, llm.ErrSchemaValidation) {
			e.logger.Warn("Unexpected response format", zap.String("category", categoryVerifyAct),
				zap.String("request_id", in.RequestID), zap.Error(err))
			return false, nil
		}
		return false, err
	}

	var raw json.RawMessage
	if resp != nil {
		raw = resp.Structured
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil || body == nil {
		e.logger.Warn("Unexpected response format: "+string(raw), zap.String("category", categoryVerifyAct),
			zap.String("request_id", in.RequestID))
		return false, nil
	}

	field, ok := body["completed"]
	if !ok {
		e.logger.Warn("Missing 'completed' field in response", zap.String("category", categoryVerifyAct),
			zap.String("request_id", in.RequestID))
		return false, nil
	}

	var completed bool
	if err := json.Unmarshal(field, &completed); err != nil {
		e.logger.Warn("Non-boolean 'completed' field in response", zap.String("category", categoryVerifyAct),
			zap.String("request_id", in.RequestID), zap.ByteString("completed", field))
		return false, nil
	}
	return completed, nil
}
