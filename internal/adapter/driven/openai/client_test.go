package openai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/aibroker/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_ChatCompletion(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "chatcmpl-1",
			"model": "gpt-4-0613",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": "hi there"}},
			},
			"usage": map[string]any{"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12},
		})
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, testLogger())
	result, err := client.ChatCompletion(context.Background(), srv.URL, "sk-test", model.ProviderRequest{
		Model:  "gpt-4",
		Prompt: "hello",
	})
	require.NoError(t, err)

	assert.Equal(t, "hi there", result.Content)
	assert.Equal(t, "gpt-4-0613", result.Model)
	assert.Equal(t, 12, result.TokensUsed)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestClient_ChatCompletionUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, testLogger())
	_, err := client.ChatCompletion(context.Background(), srv.URL, "sk-test", model.ProviderRequest{
		Model:  "gpt-4",
		Prompt: "hello",
	})
	require.Error(t, err)
}

func TestClient_ChatCompletionNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","model":"gpt-4","choices":[]}`))
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, testLogger())
	_, err := client.ChatCompletion(context.Background(), srv.URL, "sk-test", model.ProviderRequest{
		Model:  "gpt-4",
		Prompt: "hello",
	})
	require.Error(t, err)
}

func TestClient_TestConnectivityViaModelListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"gpt-4","object":"model"},{"id":"gpt-3.5-turbo","object":"model"}]}`))
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, testLogger())
	result := client.TestConnectivity(context.Background(), srv.URL, "sk-test", "gpt-4")

	assert.True(t, result.OK)
	assert.Equal(t, []string{"gpt-4", "gpt-3.5-turbo"}, result.AvailableModels)
	assert.Empty(t, result.Error)
}

func TestClient_TestConnectivityCompletionFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Endpoint without /models support.
		if r.URL.Path == "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		require.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","model":"local-llama","choices":[{"index":0,"message":{"role":"assistant","content":"Hi"}}]}`))
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, testLogger())
	result := client.TestConnectivity(context.Background(), srv.URL, "sk-test", "local-llama")

	assert.True(t, result.OK)
	assert.Equal(t, []string{"local-llama"}, result.AvailableModels)
}

func TestClient_TestConnectivityUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, testLogger())
	result := client.TestConnectivity(context.Background(), srv.URL, "sk-bad", "gpt-4")

	assert.False(t, result.OK)
	assert.NotEmpty(t, result.Error)
}
