package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w84death/agentic-chat/config"
)

func openaiBot(endpoint string) config.Bot {
	return config.Bot{
		Name:           "Grace",
		Personality:    "curious",
		Endpoint:       endpoint,
		API:            config.APIOpenAI,
		Model:          "qwen2.5",
		TimeoutSeconds: 2,
	}
}

func TestOpenAIAskSuccess(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "qwen2.5",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": "Here is my take.",
				},
			}},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient(quietLogger())
	reply, err := c.Ask(context.Background(), openaiBot(srv.URL), Prompt{System: "sys", User: "usr"})
	require.NoError(t, err)
	assert.Equal(t, "Here is my take.", reply)

	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "qwen2.5", gotBody["model"])
	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
}

func TestOpenAIAskHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "overloaded", "type": "server_error"},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient(quietLogger())
	_, err := c.Ask(context.Background(), openaiBot(srv.URL), Prompt{})
	require.Error(t, err)

	var epErr *EndpointError
	require.ErrorAs(t, err, &epErr)
	assert.Equal(t, http.StatusServiceUnavailable, epErr.Status)
}

func TestOpenAIAskNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-2",
			"object":  "chat.completion",
			"choices": []any{},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient(quietLogger())
	_, err := c.Ask(context.Background(), openaiBot(srv.URL), Prompt{})
	require.Error(t, err)

	var epErr *EndpointError
	assert.ErrorAs(t, err, &epErr)
}

func TestOpenAIClientReusedPerEndpoint(t *testing.T) {
	c := NewOpenAIClient(quietLogger())
	a := c.clientFor("http://localhost:8080")
	b := c.clientFor("http://localhost:8080")
	other := c.clientFor("http://localhost:9090")

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
}

func TestDispatcherRoutesByAPI(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{"message": map[string]string{"content": "ok"}})
	}))
	defer srv.Close()

	cl := New(quietLogger())
	bot := ollamaBot(srv.URL)
	_, err := cl.Ask(context.Background(), bot, Prompt{})
	require.NoError(t, err)
	assert.Equal(t, "/api/chat", path)
}
