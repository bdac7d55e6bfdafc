package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClient_Chat_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req openaiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.InDelta(t, 0.1, req.Temperature, 0.0001)
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		json.NewEncoder(w).Encode(openaiResponse{
			Model: "gpt-4o",
			Choices: []openaiChoice{{
				Message:      openaiMessage{Role: "assistant", Content: `{"thought":"ok"}`},
				FinishReason: "stop",
			}},
			Usage: openaiUsage{PromptTokens: 12, CompletionTokens: 5},
		})
	}))
	defer server.Close()

	client := NewOpenAIClient("sk-test", "gpt-4o", server.URL, server.Client())

	resp, err := client.Chat(context.Background(), ChatRequest{
		System:      "be terse",
		Messages:    []Message{{Role: "user", Content: "Task: check disk"}},
		Temperature: 0.1,
		JSONMode:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"thought":"ok"}`, resp.Content)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, 12, resp.InputTokens)
	assert.Equal(t, 5, resp.OutputTokens)
}

func TestOpenAIClient_Chat_APIErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(openaiError{Error: openaiErrorDetail{
			Message: "Incorrect API key provided",
			Type:    "invalid_request_error",
		}})
	}))
	defer server.Close()

	client := NewOpenAIClient("sk-bad", "gpt-4o", server.URL, server.Client())

	_, err := client.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API error (401)")
	assert.Contains(t, err.Error(), "Incorrect API key")
}

func TestOpenAIClient_Chat_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openaiResponse{Model: "gpt-4o"})
	}))
	defer server.Close()

	client := NewOpenAIClient("sk-test", "gpt-4o", server.URL, server.Client())

	_, err := client.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response choices")
}

func TestOpenAIClient_Chat_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	client := NewOpenAIClient("sk-test", "gpt-4o", server.URL, server.Client())

	_, err := client.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse response")
}

func TestOpenAIClient_BaseURLDefaultAndTrim(t *testing.T) {
	client := NewOpenAIClient("sk", "m", "", nil)
	assert.Equal(t, openaiDefaultBaseURL, client.baseURL)

	client = NewOpenAIClient("sk", "m", "http://vllm.local:8001/v1/", nil)
	assert.Equal(t, "http://vllm.local:8001/v1", client.baseURL)
}
