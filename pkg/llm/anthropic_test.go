package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"biz-insight-api/pkg/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicSend(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5-20250929",
			"content":[{"type":"text","text":"Market is growing."}],
			"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":4}
		}`))
	}))
	defer server.Close()

	p := NewAnthropicProvider(Options{APIKey: "test-key", BaseURL: server.URL})
	req := Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "You are an analyst."},
			{Role: RoleUser, Content: "Describe the bakery market."},
		},
		Model:    "claude-sonnet-4-5-20250929",
		JSONMode: true,
	}

	text, err := p.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Market is growing.", text)

	assert.Equal(t, "claude-sonnet-4-5-20250929", captured["model"])
	assert.Equal(t, float64(DefaultMaxTokens), captured["max_tokens"])
	system, ok := captured["system"].([]interface{})
	require.True(t, ok)
	assert.Len(t, system, 2)
	messages, ok := captured["messages"].([]interface{})
	require.True(t, ok)
	assert.Len(t, messages, 1)
}

func TestAnthropicErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer server.Close()

	p := NewAnthropicProvider(Options{APIKey: "bad", BaseURL: server.URL})
	_, err := p.Send(context.Background(), UserPrompt("x", "claude-sonnet-4-5-20250929", false))

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindTransport, appErr.Kind)
	assert.Equal(t, http.StatusUnauthorized, appErr.Status)
	assert.Equal(t, "Anthropic API Error (401): invalid x-api-key", appErr.Message)
}

func TestAnthropicErrorMessageFallsBackToRawBody(t *testing.T) {
	assert.Equal(t, "overloaded", anthropicErrorMessage(" overloaded \n"))
	assert.Equal(t, `{"error":{}}`, anthropicErrorMessage(`{"error":{}}`))
	assert.Equal(t, "rate limited", anthropicErrorMessage(`{"type":"error","error":{"type":"rate_limit_error","message":"rate limited"}}`))
}

func TestAnthropicMissingKey(t *testing.T) {
	p := NewAnthropicProvider(Options{BaseURL: "http://127.0.0.1:1"})
	_, err := p.Send(context.Background(), UserPrompt("x", "m", false))

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindConfigMissing, appErr.Kind)
	assert.Equal(t, "ANTHROPIC_API_KEY", appErr.Key)
}
