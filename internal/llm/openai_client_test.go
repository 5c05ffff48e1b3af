package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

var completedSchema = Schema{
	Name:   "Verification",
	Strict: true,
	Definition: jsonschema.Definition{
		Type:     jsonschema.Object,
		Required: []string{"completed"},
		Properties: map[string]jsonschema.Definition{
			"completed": {Type: jsonschema.Boolean},
		},
	},
}

var clickMenu = []Function{{
	Name: "doAction",
	Parameters: jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: map[string]jsonschema.Definition{"method": {Type: jsonschema.String}},
	},
}}

// fakeOpenAI serves one canned chat completion and records the request body.
type fakeOpenAI struct {
	status int
	reply  string
	body   map[string]any
	calls  int
}

func (f *fakeOpenAI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.calls++
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		f.body = map[string]any{}
		assert.NoError(t, json.Unmarshal(raw, &f.body))

		w.Header().Set("Content-Type", "application/json")
		if f.status != 0 {
			w.WriteHeader(f.status)
		}
		_, _ = io.WriteString(w, f.reply)
	}
}

func newFakeOpenAIClient(t *testing.T, fake *fakeOpenAI) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	client, err := NewOpenAIClient(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return client
}

func chatReply(message string) string {
	return fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion","model":"gpt-4o",
"choices":[{"index":0,"message":%s,"finish_reason":"stop"}],
"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`, message)
}

func baseRequest() Request {
	return Request{
		RequestID: "req-1",
		Messages:  []Message{SystemMessage("be brief"), UserMessage("hello")},
		Params:    Params{Model: "gpt-4o", Temperature: 0.1, TopP: 1},
	}
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIOptions{}, zaptest.NewLogger(t))
	assert.EqualError(t, err, "OPENAI_API_KEY is not set")
}

func TestOpenAIClient_PlainText(t *testing.T) {
	fake := &fakeOpenAI{reply: chatReply(`{"role":"assistant","content":"Paris"}`)}
	client := newFakeOpenAIClient(t, fake)

	resp, err := client.Complete(context.Background(), baseRequest())

	require.NoError(t, err)
	assert.Equal(t, &Response{Text: "Paris"}, resp)

	assert.Equal(t, "gpt-4o", fake.body["model"])
	assert.InDelta(t, 0.1, fake.body["temperature"], 1e-6)
	assert.InDelta(t, 1, fake.body["top_p"], 1e-6)
	assert.NotContains(t, fake.body, "tools")
	assert.NotContains(t, fake.body, "response_format")

	messages := fake.body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "hello", messages[1].(map[string]any)["content"])
}

func TestOpenAIClient_FunctionCall(t *testing.T) {
	fake := &fakeOpenAI{reply: chatReply(`{"role":"assistant","content":"",
"tool_calls":[{"id":"call_1","type":"function","function":{"name":"doAction","arguments":"{\"method\":\"click\"}"}}]}`)}
	client := newFakeOpenAIClient(t, fake)

	req := baseRequest()
	req.Functions = clickMenu
	req.FunctionChoice = FunctionChoiceAuto
	resp, err := client.Complete(context.Background(), req)

	require.NoError(t, err)
	require.NotNil(t, resp.FunctionCall)
	assert.Equal(t, "doAction", resp.FunctionCall.Name)
	assert.JSONEq(t, `{"method":"click"}`, string(resp.FunctionCall.Arguments))

	assert.Equal(t, "auto", fake.body["tool_choice"])
	tools := fake.body["tools"].([]any)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "function", tool["type"])
	assert.Equal(t, "doAction", tool["function"].(map[string]any)["name"])
}

func TestOpenAIClient_NoFunctionSelected(t *testing.T) {
	fake := &fakeOpenAI{reply: chatReply(`{"role":"assistant","content":"I would click submit"}`)}
	client := newFakeOpenAIClient(t, fake)

	req := baseRequest()
	req.Functions = clickMenu
	resp, err := client.Complete(context.Background(), req)

	require.NoError(t, err)
	assert.Nil(t, resp.FunctionCall)
	assert.Equal(t, "I would click submit", resp.Text)
}

func TestOpenAIClient_StructuredOutput(t *testing.T) {
	fake := &fakeOpenAI{reply: chatReply(`{"role":"assistant","content":"{ \"completed\": true }"}`)}
	client := newFakeOpenAIClient(t, fake)

	req := baseRequest()
	req.Schema = &completedSchema
	resp, err := client.Complete(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, `{"completed":true}`, string(resp.Structured))

	format := fake.body["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	js := format["json_schema"].(map[string]any)
	assert.Equal(t, "Verification", js["name"])
	assert.Equal(t, true, js["strict"])
	assert.Equal(t, "object", js["schema"].(map[string]any)["type"])
}

func TestOpenAIClient_StructuredOutputRejected(t *testing.T) {
	tests := map[string]string{
		"wrong type":  `{"role":"assistant","content":"{\"completed\":\"yes\"}"}`,
		"not json":    `{"role":"assistant","content":"sure thing"}`,
		"empty":       `{"role":"assistant","content":""}`,
		"refusal":     `{"role":"assistant","content":"","refusal":"I can't help with that"}`,
		"missing key": `{"role":"assistant","content":"{}"}`,
	}
	for name, message := range tests {
		t.Run(name, func(t *testing.T) {
			client := newFakeOpenAIClient(t, &fakeOpenAI{reply: chatReply(message)})
			req := baseRequest()
			req.Schema = &completedSchema

			resp, err := client.Complete(context.Background(), req)

			assert.Nil(t, resp)
			assert.ErrorIs(t, err, ErrSchemaValidation)
		})
	}
}

func TestOpenAIClient_AttachesImageToLastUserMessage(t *testing.T) {
	fake := &fakeOpenAI{reply: chatReply(`{"role":"assistant","content":"ok"}`)}
	client := newFakeOpenAIClient(t, fake)

	req := baseRequest()
	req.Image = &Image{Data: pngHeader, Description: "annotated screenshot"}
	_, err := client.Complete(context.Background(), req)
	require.NoError(t, err)

	messages := fake.body["messages"].([]any)
	system := messages[0].(map[string]any)
	assert.Equal(t, "be brief", system["content"])

	parts := messages[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 3)
	assert.Equal(t, "hello", parts[0].(map[string]any)["text"])
	assert.Equal(t, "annotated screenshot", parts[1].(map[string]any)["text"])
	image := parts[2].(map[string]any)
	assert.Equal(t, "image_url", image["type"])
	url := image["image_url"].(map[string]any)["url"].(string)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"), url)
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	client := newFakeOpenAIClient(t, &fakeOpenAI{reply: `{"id":"x","object":"chat.completion","choices":[]}`})

	_, err := client.Complete(context.Background(), baseRequest())

	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestOpenAIClient_APIError(t *testing.T) {
	fake := &fakeOpenAI{
		status: http.StatusTooManyRequests,
		reply:  `{"error":{"message":"slow down","type":"rate_limit_exceeded","code":"rate_limit_exceeded"}}`,
	}
	client := newFakeOpenAIClient(t, fake)

	_, err := client.Complete(context.Background(), baseRequest())

	require.Error(t, err)
	var apiErr *openai.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.HTTPStatusCode)
	assert.True(t, IsRateLimited(err))
}

func TestOpenAIClient_RejectsBadRequestsLocally(t *testing.T) {
	fake := &fakeOpenAI{reply: chatReply(`{"role":"assistant","content":"ok"}`)}
	client := newFakeOpenAIClient(t, fake)

	_, err := client.Complete(context.Background(), Request{RequestID: "empty"})
	assert.ErrorIs(t, err, ErrEmptyConversation)

	req := baseRequest()
	req.Schema = &completedSchema
	req.Functions = clickMenu
	_, err = client.Complete(context.Background(), req)
	assert.Error(t, err)

	assert.Zero(t, fake.calls)
}
