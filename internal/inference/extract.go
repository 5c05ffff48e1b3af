package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-inference/internal/llm"
	"github.com/nbenliogludev/go-browser-inference/internal/prompt"
)

var metadataSchema = llm.Schema{
	Name:   "Metadata",
	Strict: true,
	Definition: jsonschema.Definition{
		Type:                 jsonschema.Object,
		Required:             []string{"progress", "completed"},
		AdditionalProperties: false,
		Properties: map[string]jsonschema.Definition{
			"progress": {
				Type:        jsonschema.String,
				Description: "progress of what has been extracted so far, as concise as possible",
			},
			"completed": {
				Type: jsonschema.Boolean,
				Description: "true if the goal is now accomplished. Use this conservatively, " +
					"only when you are sure that the goal has been completed.",
			},
		},
	},
}

type ExtractionMetadata struct {
	Progress  string `json:"progress"`
	Completed bool   `json:"completed"`
}

// Extraction is the refined result for one chunk plus its metadata. It
// encodes as the data object with an extra "metadata" member.
type Extraction[T any] struct {
	Data     T
	Metadata ExtractionMetadata
}

func (x Extraction[T]) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(x.Data)
	if err != nil {
		return nil, err
	}
	obj := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("extraction data must encode as a JSON object: %s", data)
	}
	meta, err := json.Marshal(x.Metadata)
	if err != nil {
		return nil, err
	}
	obj["metadata"] = meta
	return json.Marshal(obj)
}

func (x *Extraction[T]) UnmarshalJSON(b []byte) error {
	var env struct {
		Metadata ExtractionMetadata `json:"metadata"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	var data T
	if err := json.Unmarshal(b, &data); err != nil {
		return err
	}
	if m, ok := any(data).(map[string]any); ok {
		delete(m, "metadata")
	}
	x.Data = data
	x.Metadata = env.Metadata
	return nil
}

type ExtractInput struct {
	Instruction string
	Progress    string
	// PreviouslyExtracted is opaque caller state from the previous chunk;
	// it is only encoded into the refine prompt.
	PreviouslyExtracted any
	DOMElements         string
	ChunksSeen          int
	ChunksTotal         int
	RequestID           string
}

// Extract runs the extraction pipeline with a schema reflected from T.
func Extract[T any](ctx context.Context, e *Engine, in ExtractInput) (*Extraction[T], error) {
	schema, err := llm.SchemaFor[T]("Extraction", false)
	if err != nil {
		return nil, err
	}
	return ExtractWith[T](ctx, e, schema, in)
}

// ExtractWith runs extract, refine and metadata passes in order. Passes one
// and two share schema; a response failing it aborts the pipeline.
func ExtractWith[T any](ctx context.Context, e *Engine, schema llm.Schema, in ExtractInput) (*Extraction[T], error) {
	logger := e.logger.With(zap.String("category", "Extract"), zap.String("request_id", in.RequestID))

	extractSchema := schema
	extractSchema.Name = "Extraction"
	extracted, err := structured(ctx, e, in.RequestID, extractSchema,
		prompt.Extract(in.Instruction, in.DOMElements))
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	refineSchema := schema
	refineSchema.Name = "RefinedExtraction"
	refined, err := structured(ctx, e, in.RequestID, refineSchema,
		prompt.Refine(in.Instruction, in.PreviouslyExtracted, extracted))
	if err != nil {
		return nil, fmt.Errorf("refine: %w", err)
	}

	var data T
	if err := llm.DecodeStructured(refineSchema, refined, &data); err != nil {
		return nil, fmt.Errorf("refine: %w", err)
	}

	metaRaw, err := structured(ctx, e, in.RequestID, metadataSchema,
		prompt.Metadata(in.Instruction, refined, in.ChunksSeen, in.ChunksTotal))
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	var meta ExtractionMetadata
	if err := llm.DecodeStructured(metadataSchema, metaRaw, &meta); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}

	logger.Debug("extraction pass finished",
		zap.String("previous_progress", in.Progress),
		zap.Int("chunks_seen", in.ChunksSeen),
		zap.Int("chunks_total", in.ChunksTotal),
		zap.Bool("completed", meta.Completed),
	)
	return &Extraction[T]{Data: data, Metadata: meta}, nil
}

var errNoStructured = errors.New("no structured content in response")

// structured performs one schema-constrained call and returns the validated
// payload.
func structured(ctx context.Context, e *Engine, requestID string, schema llm.Schema, messages []llm.Message) (json.RawMessage, error) {
	resp, err := e.complete(ctx, requestID, messages, withSchema(schema))
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Structured) == 0 {
		return nil, fmt.Errorf("%w: %s: %v", llm.ErrSchemaValidation, schema.Name, errNoStructured)
	}
	var probe any
	if err := llm.DecodeStructured(schema, resp.Structured, &probe); err != nil {
		return nil, err
	}
	return resp.Structured, nil
}
