package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/geoextract/internal/llm"
)

func TestExtractEntities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body["model"])
		assert.EqualValues(t, defaultMaxTokens, body["max_tokens"])
		assert.Contains(t, body["system"], "JSON Schema")
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 1)
		assert.Equal(t, "user", msgs[0].(map[string]any)["role"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{
				"type": "text",
				"text": "```json\n{\"entities\":[{\"entity_type\":\"coordinate\",\"source_text\":\"35.5 N, 117.2 W\",\"fields\":{\"raw\":\"35.5 N, 117.2 W\"},\"confidence\":0.8}]}\n```",
			}},
			"stop_reason": "end_turn",
		})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-ant-test", BaseURL: srv.URL, Model: "claude-test"}, nil, nil)
	entities, _, err := c.ExtractEntities(context.Background(), llm.ExtractRequest{Text: "Site at 35.5 N, 117.2 W"})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "coordinate", entities[0].EntityType)
	assert.Equal(t, "35.5 N, 117.2 W", entities[0].Fields["raw"])
	require.NotNil(t, entities[0].Confidence)
	assert.InDelta(t, 0.8, *entities[0].Confidence, 1e-9)
	assert.Equal(t, "anthropic", c.Name())
}

func TestExtractEntities_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil, nil)
	_, _, err := c.ExtractEntities(context.Background(), llm.ExtractRequest{Text: "x"})
	require.Error(t, err)
	var se *llm.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Status)
}

func TestExtractEntities_NoTextBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[],"stop_reason":"max_tokens"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil, nil)
	_, _, err := c.ExtractEntities(context.Background(), llm.ExtractRequest{Text: "x"})
	assert.ErrorContains(t, err, "no text content")
}
