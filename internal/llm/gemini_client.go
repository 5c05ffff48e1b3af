package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiClient implements Client on top of the Gemini API.
type GeminiClient struct {
	models *genai.Models
	logger *zap.Logger
}

type GeminiOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewGeminiClient(ctx context.Context, opts GeminiOptions, logger *zap.Logger) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      opts.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  opts.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: opts.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{
		models: client.Models,
		logger: logger.Named("llm.gemini"),
	}, nil
}

func (c *GeminiClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	contents, cfg := buildGeminiRequest(req)
	resp, err := c.models.GenerateContent(ctx, req.Params.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini error: %w", err)
	}

	if resp.UsageMetadata != nil {
		c.logger.Debug("generate content finished",
			zap.String("request_id", req.RequestID),
			zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
			zap.Int32("completion_tokens", resp.UsageMetadata.CandidatesTokenCount),
		)
	}

	return geminiResponse(req, resp)
}

// buildGeminiRequest maps system messages to the system instruction and
// everything else to user contents.
func buildGeminiRequest(req Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	var system []string
	var contents []*genai.Content
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
	}

	if req.Image != nil {
		parts := []*genai.Part{}
		if req.Image.Description != "" {
			parts = append(parts, genai.NewPartFromText(req.Image.Description))
		}
		parts = append(parts, genai.NewPartFromBytes(req.Image.Data, http.DetectContentType(req.Image.Data)))
		if n := len(contents); n > 0 {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
		} else {
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(req.Params.Temperature),
		TopP:             genai.Ptr(req.Params.TopP),
		FrequencyPenalty: genai.Ptr(req.Params.FrequencyPenalty),
		PresencePenalty:  genai.Ptr(req.Params.PresencePenalty),
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseJsonSchema = req.Schema.Definition
	}

	if len(req.Functions) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Functions))
		for _, fn := range req.Functions {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 fn.Name,
				Description:          fn.Description,
				ParametersJsonSchema: fn.Parameters,
			})
		}
		mode := genai.FunctionCallingConfigModeAuto
		if req.FunctionChoice == FunctionChoiceNone {
			mode = genai.FunctionCallingConfigModeNone
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		cfg.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode},
		}
	}

	return contents, cfg
}

func geminiResponse(req Request, resp *genai.GenerateContentResponse) (*Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, ErrNoChoices
	}

	switch {
	case len(req.Functions) > 0:
		out := &Response{}
		if calls := resp.FunctionCalls(); len(calls) > 0 {
			args, err := json.Marshal(calls[0].Args)
			if err != nil {
				return nil, fmt.Errorf("encode function args: %w", err)
			}
			out.FunctionCall = &FunctionCall{Name: calls[0].Name, Arguments: args}
		} else {
			out.Text = resp.Text()
		}
		return out, nil

	case req.Schema != nil:
		structured, err := checkStructured(*req.Schema, resp.Text())
		if err != nil {
			return nil, err
		}
		return &Response{Structured: structured}, nil

	default:
		return &Response{Text: resp.Text()}, nil
	}
}
