package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sashabaranov/go-openai/jsonschema"
)

var (
	ErrEmptyConversation = errors.New("no messages to send")
	ErrSchemaValidation  = errors.New("response does not match schema")
	ErrNoChoices         = errors.New("no response choices")
)

type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

type Message struct {
	Role    Role
	Content string
}

func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }
func UserMessage(content string) Message   { return Message{Role: RoleUser, Content: content} }

// Image is a single screenshot attached to the last user message of a request.
type Image struct {
	Data        []byte
	Description string
}

// Params are the generation settings sent with every request.
type Params struct {
	Model            string
	Temperature      float32
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
}

// Schema names a JSON schema the structured response must satisfy.
type Schema struct {
	Name       string
	Definition jsonschema.Definition
	Strict     bool
}

// Function is one entry of the menu offered to the model.
type Function struct {
	Name        string
	Description string
	Parameters  jsonschema.Definition
}

type FunctionChoice string

const (
	FunctionChoiceAuto FunctionChoice = "auto"
	FunctionChoiceNone FunctionChoice = "none"
)

type Request struct {
	// RequestID is a correlation token; clients log it, never interpret it.
	RequestID string
	Messages  []Message
	Params    Params

	Image          *Image
	Schema         *Schema
	Functions      []Function
	FunctionChoice FunctionChoice
}

type FunctionCall struct {
	Name      string
	Arguments json.RawMessage
}

// Response holds exactly one of Text, Structured or FunctionCall.
// FunctionCall is nil when a menu was offered and the model picked nothing.
type Response struct {
	Text         string
	Structured   json.RawMessage
	FunctionCall *FunctionCall
}

type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
