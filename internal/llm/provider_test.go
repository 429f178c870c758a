package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_OpenAIDefaults(t *testing.T) {
	p, err := NewProvider(Config{Provider: "openai", APIKey: "k"}, 5*time.Second)
	require.NoError(t, err)

	oc, ok := p.(*openAICompatible)
	require.True(t, ok)
	assert.Equal(t, "openai", oc.name)
	assert.Equal(t, defaultOpenAIModel, oc.model)
	assert.Equal(t, defaultOpenAIBaseURL, oc.httpClient.BaseURL)
}

func TestNewProvider_ChatGPTAlias(t *testing.T) {
	// 前端旧命名 chatgpt 映射到 openai
	p, err := NewProvider(Config{Provider: "ChatGPT", APIKey: "k"}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}

func TestNewProvider_ModelCheckedAtChatTime(t *testing.T) {
	// 列模型不需要先选模型，所以构造时不校验 model
	p, err := NewProvider(Config{Provider: "grok", APIKey: "k"}, 5*time.Second)
	require.NoError(t, err)

	_, err = p.Chat(context.Background(), nil)
	require.Error(t, err)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "grok", perr.Provider)
	assert.Contains(t, perr.Message, "model is required")
}

func TestNewProvider_GlamaBaseURL(t *testing.T) {
	p, err := NewProvider(Config{Provider: "glama", APIKey: "k", Model: "m"}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, defaultGlamaBaseURL, p.(*openAICompatible).httpClient.BaseURL)
}

func TestNewProvider_VLLMAppendsV1(t *testing.T) {
	p, err := NewProvider(Config{Provider: "vllm", BaseURL: "http://localhost:8000/", Model: "m"}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/v1", p.(*openAICompatible).httpClient.BaseURL)

	p, err = NewProvider(Config{Provider: "vllm", BaseURL: "http://localhost:8000/v1", Model: "m"}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/v1", p.(*openAICompatible).httpClient.BaseURL)
}

func TestNewProvider_VLLMRequiresBaseURL(t *testing.T) {
	_, err := NewProvider(Config{Provider: "vllm", Model: "m"}, 5*time.Second)
	require.Error(t, err)
}

func TestNewProvider_AnthropicRequiresKey(t *testing.T) {
	_, err := NewProvider(Config{Provider: "anthropic", Model: "claude-3"}, 5*time.Second)
	require.Error(t, err)

	p, err := NewProvider(Config{Provider: "anthropic", APIKey: "k", Model: "claude-3"}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())
}

func TestNewProvider_OllamaHostFallback(t *testing.T) {
	// 旧前端把 host 填在 api key 字段里
	p, err := NewProvider(Config{Provider: "ollama", APIKey: "http://localhost:11434", Model: "llama3"}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434", p.(*ollamaProvider).httpClient.BaseURL)

	_, err = NewProvider(Config{Provider: "ollama", Model: "llama3"}, 5*time.Second)
	require.Error(t, err)
}

func TestNewProvider_Unsupported(t *testing.T) {
	_, err := NewProvider(Config{Provider: "gemini"}, 5*time.Second)
	require.Error(t, err)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Error(), "unsupported llm provider")
}

func TestProviderError_Format(t *testing.T) {
	withStatus := &ProviderError{Provider: "openai", StatusCode: 401, Message: "bad key"}
	assert.Equal(t, "openai api error (status 401): bad key", withStatus.Error())

	withoutStatus := &ProviderError{Provider: "ollama", Message: "host url is required"}
	assert.Equal(t, "ollama provider error: host url is required", withoutStatus.Error())
}
