package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type OpenAIClient struct {
	client *openai.Client
	logger *zap.Logger
}

type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewOpenAIClient(opts OpenAIOptions, logger *zap.Logger) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		logger: logger.Named("llm.openai"),
	}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("OpenAI error: %w", err)
	}

	c.logger.Debug("chat completion finished",
		zap.String("request_id", req.RequestID),
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}
	msg := resp.Choices[0].Message

	switch {
	case len(req.Functions) > 0:
		out := &Response{Text: msg.Content}
		if len(msg.ToolCalls) > 0 {
			call := msg.ToolCalls[0].Function
			out.FunctionCall = &FunctionCall{Name: call.Name, Arguments: json.RawMessage(call.Arguments)}
		}
		return out, nil

	case req.Schema != nil:
		if msg.Refusal != "" {
			return nil, fmt.Errorf("%w: %s: model refused: %s", ErrSchemaValidation, req.Schema.Name, msg.Refusal)
		}
		structured, err := checkStructured(*req.Schema, msg.Content)
		if err != nil {
			return nil, err
		}
		return &Response{Structured: structured}, nil

	default:
		return &Response{Text: msg.Content}, nil
	}
}

func (c *OpenAIClient) buildRequest(req Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	if req.Image != nil {
		attachImage(messages, *req.Image)
	}

	out := openai.ChatCompletionRequest{
		Model:            req.Params.Model,
		Messages:         messages,
		Temperature:      req.Params.Temperature,
		TopP:             req.Params.TopP,
		FrequencyPenalty: req.Params.FrequencyPenalty,
		PresencePenalty:  req.Params.PresencePenalty,
	}

	if req.Schema != nil {
		def := req.Schema.Definition
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.Schema.Name,
				Schema: &def,
				Strict: req.Schema.Strict,
			},
		}
	}

	if len(req.Functions) > 0 {
		tools := make([]openai.Tool, 0, len(req.Functions))
		for _, fn := range req.Functions {
			params := fn.Parameters
			tools = append(tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        fn.Name,
					Description: fn.Description,
					Parameters:  &params,
				},
			})
		}
		out.Tools = tools
		choice := req.FunctionChoice
		if choice == "" {
			choice = FunctionChoiceAuto
		}
		out.ToolChoice = string(choice)
	}

	return out
}

// attachImage turns the last user message into a multi-part message carrying
// the caption and the image as a data URL.
func attachImage(messages []openai.ChatCompletionMessage, img Image) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != openai.ChatMessageRoleUser {
			continue
		}
		parts := []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: messages[i].Content},
		}
		if img.Description != "" {
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: img.Description})
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:" + http.DetectContentType(img.Data) + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
				Detail: openai.ImageURLDetailAuto,
			},
		})
		messages[i].Content = ""
		messages[i].MultiContent = parts
		return
	}
}
