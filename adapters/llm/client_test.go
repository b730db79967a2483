package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AllenThomasDev/causal-webapp/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o-mini", SystemContext: "be careful"})
	require.NoError(t, err)
	return client
}

func TestChatCompletionParsesContentAndUsage(t *testing.T) {
	var captured map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		_, _ = w.Write([]byte(`{
			"model": "gpt-4o-mini-2024",
			"choices": [{"message": {"role": "assistant", "content": "{\"a\": 1}"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`))
	})

	resp, err := client.ChatCompletion(context.Background(), ports.ChatRequest{Prompt: "give me json", JSON: true})
	require.NoError(t, err)

	assert.Equal(t, `{"a": 1}`, resp.Content)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 17, resp.Usage.TotalTokens)
	assert.Equal(t, "gpt-4o-mini-2024", resp.Usage.Model)
	assert.Equal(t, "openai", resp.Usage.Provider)

	format, ok := captured["response_format"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
	messages := captured["messages"].([]interface{})
	assert.Equal(t, "be careful", messages[0].(map[string]interface{})["content"])
}

func TestChatCompletionTextModeOmitsResponseFormat(t *testing.T) {
	var captured map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "plain words"}}]}`))
	})

	resp, err := client.ChatCompletion(context.Background(), ports.ChatRequest{System: "explain", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "plain words", resp.Content)
	assert.Nil(t, resp.Usage)
	_, present := captured["response_format"]
	assert.False(t, present)
}

func TestChatCompletionClassifiesHTTPErrors(t *testing.T) {
	cases := []struct {
		status int
		kind   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusBadGateway, ErrServer},
		{http.StatusBadRequest, ErrBadRequest},
	}
	for _, tc := range cases {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error": "nope"}`))
		})
		_, err := client.ChatCompletion(context.Background(), ports.ChatRequest{Prompt: "x"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, tc.kind), "status %d", tc.status)

		var httpErr *HTTPError
		require.True(t, errors.As(err, &httpErr))
		assert.Equal(t, tc.status, httpErr.StatusCode)
	}
}

func TestChatCompletionMissingChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	})
	_, err := client.ChatCompletion(context.Background(), ports.ChatRequest{Prompt: "x"})
	assert.Error(t, err)
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{Model: "gpt-4o-mini"})
	assert.Error(t, err)
}

func TestMockLLMClientRoutesByOperation(t *testing.T) {
	mock := &MockLLMClient{
		Response:  "default",
		Responses: map[string]string{"roles": `{"outcome": "y"}`},
	}
	resp, err := mock.ChatCompletion(context.Background(), ports.ChatRequest{Operation: "roles"})
	require.NoError(t, err)
	assert.Equal(t, `{"outcome": "y"}`, resp.Content)

	resp, err = mock.ChatCompletion(context.Background(), ports.ChatRequest{Operation: "other"})
	require.NoError(t, err)
	assert.Equal(t, "default", resp.Content)
	assert.Equal(t, 2, mock.Calls())
}
