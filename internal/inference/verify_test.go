package inference

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nbenliogludev/go-browser-inference/internal/llm"
	"github.com/nbenliogludev/go-browser-inference/internal/prompt"
)

func TestVerifyActCompletion_Completed(t *testing.T) {
	engine, client, _ := setupEngine(t)
	ctx := context.Background()
	screenshot := []byte{0x89, 'P', 'N', 'G'}

	client.On("Complete", ctx, mock.MatchedBy(func(req llm.Request) bool {
		return req.RequestID == "req-1" &&
			req.Schema != nil && req.Schema.Name == "Verification" &&
			req.Image != nil && req.Image.Description == prompt.FullPageScreenshotText &&
			len(req.Functions) == 0 &&
			req.Params == DefaultParams
	})).Return(structuredResponse(`{"completed":true}`), nil).Once()

	done, err := engine.VerifyActCompletion(ctx, VerifyInput{
		Goal:       "buy milk",
		Steps:      "Added milk to cart; Checked out",
		Screenshot: screenshot,
		RequestID:  "req-1",
	})

	require.NoError(t, err)
	assert.True(t, done)
	client.AssertExpectations(t)
}

func TestVerifyActCompletion_ConservativeDefaults(t *testing.T) {
	cases := map[string]string{
		"null":            `null`,
		"not an object":   `"yes"`,
		"array":           `[true]`,
		"missing field":   `{"done":true}`,
		"non-boolean":     `{"completed":"yes"}`,
		"empty payload":   ``,
		"explicit false":  `{"completed":false}`,
		"malformed json":  `{"completed":`,
		"null completion": `{"completed":null}`,
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			engine, client, _ := setupEngine(t)
			client.On("Complete", mock.Anything, mock.Anything).Return(structuredResponse(payload), nil).Times(3)

			for _, goal := range []string{"", "buy milk", "anything at all"} {
				done, err := engine.VerifyActCompletion(context.Background(), VerifyInput{Goal: goal, Steps: "none"})
				require.NoError(t, err)
				assert.False(t, done)
			}
		})
	}
}

func TestVerifyActCompletion_LogsCategory(t *testing.T) {
	engine, client, logs := setupEngine(t)
	client.On("Complete", mock.Anything, mock.Anything).Return(structuredResponse(`{"other":1}`), nil).Once()

	done, err := engine.VerifyActCompletion(context.Background(), VerifyInput{Goal: "g", Steps: "s"})

	require.NoError(t, err)
	assert.False(t, done)
	entries := categoryLogs(logs, "VerifyAct")
	require.Len(t, entries, 1)
	assert.Equal(t, "Missing 'completed' field in response", entries[0].Message)
}

func TestVerifyActCompletion_NilResponse(t *testing.T) {
	engine, client, logs := setupEngine(t)
	client.On("Complete", mock.Anything, mock.Anything).Return(nil, nil).Once()

	done, err := engine.VerifyActCompletion(context.Background(), VerifyInput{Goal: "g", Steps: "s"})

	require.NoError(t, err)
	assert.False(t, done)
	assert.Len(t, categoryLogs(logs, "VerifyAct"), 1)
}

func TestVerifyActCompletion_SchemaErrorIsNotCompleted(t *testing.T) {
	engine, client, _ := setupEngine(t)
	schemaErr := fmt.Errorf("%w: Verification: bad", llm.ErrSchemaValidation)
	client.On("Complete", mock.Anything, mock.Anything).Return(nil, schemaErr).Once()

	done, err := engine.VerifyActCompletion(context.Background(), VerifyInput{Goal: "g", Steps: "s"})

	require.NoError(t, err)
	assert.False(t, done)
}

func TestVerifyActCompletion_TransportErrorPropagates(t *testing.T) {
	engine, client, _ := setupEngine(t)
	transportErr := errors.New("connection reset")
	client.On("Complete", mock.Anything, mock.Anything).Return(nil, transportErr).Once()

	done, err := engine.VerifyActCompletion(context.Background(), VerifyInput{Goal: "g", Steps: "s"})

	assert.False(t, done)
	assert.ErrorIs(t, err, transportErr)
}

func TestVerifyActCompletion_NoScreenshotNoImage(t *testing.T) {
	engine, client, _ := setupEngine(t)
	client.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Image == nil
	})).Return(structuredResponse(`{"completed":true}`), nil).Once()

	done, err := engine.VerifyActCompletion(context.Background(), VerifyInput{Goal: "g", Steps: "s"})

	require.NoError(t, err)
	assert.True(t, done)
	client.AssertExpectations(t)
}
