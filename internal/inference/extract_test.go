package inference

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nbenliogludev/go-browser-inference/internal/llm"
)

type product struct {
	Name  string  `json:"name" description:"product name"`
	Price float64 `json:"price"`
}

const productDOM = `[0] <h1 label="Margherita">
[1] <span label="12.50 TL">`

func TestExtract_ThreePassesInOrder(t *testing.T) {
	engine, client, _ := setupEngine(t)
	ctx := context.Background()

	var order []string
	var requests []llm.Request
	record := func(args mock.Arguments) {
		req := args.Get(1).(llm.Request)
		order = append(order, req.Schema.Name)
		requests = append(requests, req)
	}

	client.On("Complete", ctx, schemaNamed("Extraction")).Run(record).
		Return(structuredResponse(`{"name":"Margherita","price":12.5}`), nil).Once()
	client.On("Complete", ctx, schemaNamed("RefinedExtraction")).Run(record).
		Return(structuredResponse(`{"name":"Margherita","price":12.5}`), nil).Once()
	client.On("Complete", ctx, schemaNamed("Metadata")).Run(record).
		Return(structuredResponse(`{"progress":"found the pizza","completed":true}`), nil).Once()

	got, err := Extract[product](ctx, engine, ExtractInput{
		Instruction: "extract the pizza name and price",
		DOMElements: productDOM,
		ChunksSeen:  1,
		ChunksTotal: 3,
		RequestID:   "req-7",
	})

	require.NoError(t, err)
	want := &Extraction[product]{
		Data:     product{Name: "Margherita", Price: 12.5},
		Metadata: ExtractionMetadata{Progress: "found the pizza", Completed: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"Extraction", "RefinedExtraction", "Metadata"}, order)

	require.Len(t, requests, 3)
	assert.Equal(t, requests[0].Schema.Definition, requests[1].Schema.Definition,
		"extract and refine passes must share one schema")
	assert.Contains(t, requests[0].Messages[1].Content, productDOM)
	assert.Contains(t, requests[1].Messages[1].Content, "Previous Content: null")
	assert.Contains(t, requests[2].Messages[1].Content, "chunksSeen: 1")
	assert.Contains(t, requests[2].Messages[1].Content, "chunksTotal: 3")
	for _, req := range requests {
		assert.Equal(t, "req-7", req.RequestID)
		assert.Empty(t, req.Functions)
	}
	client.AssertExpectations(t)
}

func TestExtract_FlattenedEncoding(t *testing.T) {
	x := Extraction[product]{
		Data:     product{Name: "Margherita", Price: 12.5},
		Metadata: ExtractionMetadata{Progress: "done", Completed: true},
	}

	b, err := json.Marshal(x)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Margherita","price":12.5,"metadata":{"progress":"done","completed":true}}`, string(b))

	var back Extraction[product]
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, x, back)
}

func TestExtract_FlattenedEncodingRejectsNonObject(t *testing.T) {
	_, err := json.Marshal(Extraction[[]string]{Data: []string{"a"}})
	assert.Error(t, err)
}

func TestExtract_RefinedOutputFeedsMetadataAndPreviousContentFeedsRefine(t *testing.T) {
	engine, client, _ := setupEngine(t)
	ctx := context.Background()
	previous := map[string]any{"name": "Marg"}

	client.On("Complete", ctx, schemaNamed("Extraction")).
		Return(structuredResponse(`{"name":"herita","price":0}`), nil).Once()
	client.On("Complete", ctx, mock.MatchedBy(func(req llm.Request) bool {
		return req.Schema != nil && req.Schema.Name == "RefinedExtraction" &&
			assert.ObjectsAreEqual("Instruction: get it\nPrevious Content: {\"name\":\"Marg\"}\nNew Content: {\"name\":\"herita\",\"price\":0}",
				req.Messages[1].Content)
	})).Return(structuredResponse(`{"name":"Margherita","price":12.5}`), nil).Once()
	client.On("Complete", ctx, mock.MatchedBy(func(req llm.Request) bool {
		return req.Schema != nil && req.Schema.Name == "Metadata" &&
			assert.ObjectsAreEqual("Instruction: get it\nExtracted content: {\"name\":\"Margherita\",\"price\":12.5}\nchunksSeen: 2\nchunksTotal: 2",
				req.Messages[1].Content)
	})).Return(structuredResponse(`{"progress":"complete","completed":true}`), nil).Once()

	got, err := Extract[product](ctx, engine, ExtractInput{
		Instruction:         "get it",
		PreviouslyExtracted: previous,
		DOMElements:         productDOM,
		ChunksSeen:          2,
		ChunksTotal:         2,
	})

	require.NoError(t, err)
	assert.Equal(t, "Margherita", got.Data.Name)
	assert.True(t, got.Metadata.Completed)
	client.AssertExpectations(t)
}

func TestExtract_SchemaViolationAborts(t *testing.T) {
	tests := []struct {
		name      string
		failing   string
		wantCalls int
		wantPass  string
	}{
		{name: "extract pass", failing: "Extraction", wantCalls: 1, wantPass: "extract:"},
		{name: "refine pass", failing: "RefinedExtraction", wantCalls: 2, wantPass: "refine:"},
		{name: "metadata pass", failing: "Metadata", wantCalls: 3, wantPass: "metadata:"},
	}

	valid := map[string]string{
		"Extraction":        `{"name":"Margherita","price":12.5}`,
		"RefinedExtraction": `{"name":"Margherita","price":12.5}`,
		"Metadata":          `{"progress":"p","completed":false}`,
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, client, _ := setupEngine(t)
			for name, payload := range valid {
				if name == tt.failing {
					payload = `{"price":"twelve"}`
				}
				client.On("Complete", mock.Anything, schemaNamed(name)).Return(structuredResponse(payload), nil).Maybe()
			}

			got, err := Extract[product](context.Background(), engine, ExtractInput{Instruction: "i", DOMElements: productDOM})

			assert.Nil(t, got)
			require.ErrorIs(t, err, llm.ErrSchemaValidation)
			assert.Contains(t, err.Error(), tt.wantPass)
			client.AssertNumberOfCalls(t, "Complete", tt.wantCalls)
		})
	}
}

func TestExtract_EmptyResponseIsSchemaViolation(t *testing.T) {
	engine, client, _ := setupEngine(t)
	client.On("Complete", mock.Anything, mock.Anything).Return(&llm.Response{Text: "sorry"}, nil).Once()

	_, err := Extract[product](context.Background(), engine, ExtractInput{Instruction: "i"})

	assert.ErrorIs(t, err, llm.ErrSchemaValidation)
}

func TestExtract_TransportErrorPropagates(t *testing.T) {
	engine, client, _ := setupEngine(t)
	transportErr := errors.New("timeout")
	client.On("Complete", mock.Anything, mock.Anything).Return(nil, transportErr).Once()

	_, err := Extract[product](context.Background(), engine, ExtractInput{Instruction: "i"})

	assert.ErrorIs(t, err, transportErr)
}

func TestExtractWith_DynamicSchema(t *testing.T) {
	engine, client, _ := setupEngine(t)
	schema := llm.Schema{
		Name: "ignored",
		Definition: jsonschema.Definition{
			Type:     jsonschema.Object,
			Required: []string{"headlines"},
			Properties: map[string]jsonschema.Definition{
				"headlines": {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}},
			},
		},
	}

	client.On("Complete", mock.Anything, schemaNamed("Extraction")).
		Return(structuredResponse(`{"headlines":["a"]}`), nil).Once()
	client.On("Complete", mock.Anything, schemaNamed("RefinedExtraction")).
		Return(structuredResponse(`{"headlines":["a","b"]}`), nil).Once()
	client.On("Complete", mock.Anything, schemaNamed("Metadata")).
		Return(structuredResponse(`{"progress":"two headlines","completed":false}`), nil).Once()

	got, err := ExtractWith[map[string]any](context.Background(), engine, schema, ExtractInput{Instruction: "headlines"})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"headlines": []any{"a", "b"}}, got.Data)
	assert.False(t, got.Metadata.Completed)

	b, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"headlines":["a","b"],"metadata":{"progress":"two headlines","completed":false}}`, string(b))

	var back Extraction[map[string]any]
	require.NoError(t, json.Unmarshal(b, &back))
	assert.NotContains(t, back.Data, "metadata")
	client.AssertExpectations(t)
}
