package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/nbenliogludev/go-browser-inference/internal/llm"
	"github.com/nbenliogludev/go-browser-inference/internal/prompt"
)

var observationSchema = llm.Schema{
	Name:   "Observation",
	Strict: true,
	Definition: jsonschema.Definition{
		Type:                 jsonschema.Object,
		Required:             []string{"elements"},
		AdditionalProperties: false,
		Properties: map[string]jsonschema.Definition{
			"elements": {
				Type:        jsonschema.Array,
				Description: "an array of elements that match the instruction",
				Items: &jsonschema.Definition{
					Type:                 jsonschema.Object,
					Required:             []string{"elementId", "description"},
					AdditionalProperties: false,
					Properties: map[string]jsonschema.Definition{
						"elementId": {
							Type:        jsonschema.Integer,
							Description: "the number of the element",
						},
						"description": {
							Type:        jsonschema.String,
							Description: "a description of the element and what it is relevant for",
						},
					},
				},
			},
		},
	},
}

type ObservedElement struct {
	ElementID   int    `json:"elementId"`
	Description string `json:"description"`
}

// UnmarshalJSON accepts an integral element id written as a float.
func (o *ObservedElement) UnmarshalJSON(data []byte) error {
	type plain ObservedElement
	aux := struct {
		*plain
		ElementID float64 `json:"elementId"`
	}{plain: (*plain)(o)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	n, err := elementNumber(aux.ElementID)
	if err != nil {
		return err
	}
	o.ElementID = n
	return nil
}

type Observation struct {
	Elements []ObservedElement `json:"elements"`
}

type ObserveInput struct {
	Instruction string
	DOMElements string
	Image       []byte
	RequestID   string
}

// Observe lists the elements relevant to the instruction. A missing or null
// response is an error, never an empty list.
func (e *Engine) Observe(ctx context.Context, in ObserveInput) (*Observation, error) {
	resp, err := e.complete(ctx, in.RequestID,
		prompt.Observe(in.Instruction, in.DOMElements),
		withImage(in.Image, prompt.AnnotatedScreenshotText),
		withSchema(observationSchema),
	)
	if err != nil {
		return nil, err
	}
	if resp == nil || isNull(resp.Structured) {
		return nil, ErrNoObservation
	}

	var obs Observation
	if err := llm.DecodeStructured(observationSchema, resp.Structured, &obs); err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	return &obs, nil
}

func isNull(raw []byte) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
