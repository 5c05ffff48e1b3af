package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// SchemaFor reflects T into a named schema. Field descriptions come from
// `description` struct tags.
func SchemaFor[T any](name string, strict bool) (Schema, error) {
	var zero T
	def, err := jsonschema.GenerateSchemaForType(zero)
	if err != nil {
		return Schema{}, fmt.Errorf("generate schema %s: %w", name, err)
	}
	return Schema{Name: name, Definition: *def, Strict: strict}, nil
}

// DecodeStructured validates raw against schema and unmarshals it into v.
// Any mismatch, including a null or non-JSON payload, wraps ErrSchemaValidation.
func DecodeStructured(schema Schema, raw []byte, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return fmt.Errorf("%w: %s: empty payload", ErrSchemaValidation, schema.Name)
	}
	if err := jsonschema.VerifySchemaAndUnmarshal(schema.Definition, raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchemaValidation, schema.Name, err)
	}
	return nil
}

func validateRequest(req Request) error {
	if len(req.Messages) == 0 {
		return ErrEmptyConversation
	}
	if req.Schema != nil && len(req.Functions) > 0 {
		return fmt.Errorf("request %s: schema and function menu are mutually exclusive", req.RequestID)
	}
	return nil
}

// checkStructured validates a provider payload and returns it compacted.
func checkStructured(schema Schema, content string) (json.RawMessage, error) {
	var v any
	if err := DecodeStructured(schema, []byte(content), &v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(content)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchemaValidation, schema.Name, err)
	}
	return buf.Bytes(), nil
}
