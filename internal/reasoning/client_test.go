package reasoning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridsense/internal/config"
)

func TestNew_MissingKey(t *testing.T) {
	_, err := New(config.ProviderConfig{Provider: config.ProviderOpenAI})
	assert.Error(t, err)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(config.ProviderConfig{Provider: "mystery", APIKey: "k"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

func TestNew_OpenAI(t *testing.T) {
	client, err := New(config.ProviderConfig{Provider: config.ProviderOpenAI, APIKey: "k"})
	require.NoError(t, err)
	_, ok := client.(*OpenAIClient)
	assert.True(t, ok, "expected an *OpenAIClient, got %T", client)
}

func TestOpenAIClient_CompleteWithSystem(t *testing.T) {
	var gotAuth string
	var gotBody openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello back"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(config.ProviderConfig{
		Provider: config.ProviderOpenAI,
		APIKey:   "test-key",
		BaseURL:  server.URL,
		Model:    "test-model",
	})

	out, err := client.CompleteWithSystem(context.Background(), "be brief", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello back", out)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "test-model", gotBody.Model)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Equal(t, "be brief", gotBody.Messages[0].Content)
}

func TestOpenAIClient_RetriesRateLimit(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(config.ProviderConfig{APIKey: "k", BaseURL: server.URL})

	out, err := client.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, attempts)
}

func TestOpenAIClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"model overloaded"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(config.ProviderConfig{APIKey: "k", BaseURL: server.URL})

	_, err := client.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestOpenAIClient_NoKey(t *testing.T) {
	client := NewOpenAIClient(config.ProviderConfig{})
	_, err := client.Complete(context.Background(), "hi")
	assert.Error(t, err)
}
