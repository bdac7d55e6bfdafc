package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsToOpenAI(t *testing.T) {
	p, err := New(Config{APIKey: "sk-test", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}

func TestNew_SelectsProviderCaseInsensitively(t *testing.T) {
	p, err := New(Config{Provider: " OpenAI ", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	p, err = New(Config{Provider: "OLLAMA", Model: "llama3.2"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())
}

func TestNew_OpenAIRequiresAPIKey(t *testing.T) {
	_, err := New(Config{Provider: "openai"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestNew_OllamaNeedsNoKey(t *testing.T) {
	p, err := New(Config{Provider: "ollama", Model: "llama3.2"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "bedrock"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider: bedrock")
}
