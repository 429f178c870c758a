package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wisefido-insight/internal/models"
)

func TestAnthropic_ChatLiftsSystemPrompt(t *testing.T) {
	var gotBody map[string]any
	var gotKey, gotVersion string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"part one "},{"type":"text","text":"part two"}]}`))
	}))
	defer server.Close()

	p := newAnthropicProvider(server.URL, "sk-ant-test", "claude-3-sonnet", 5*time.Second)
	reply, err := p.Chat(context.Background(), []models.ChatMessage{
		{Role: models.RoleSystem, Content: "you are an analyst"},
		{Role: models.RoleUser, Content: "summarize"},
	})
	require.NoError(t, err)

	assert.Equal(t, "sk-ant-test", gotKey)
	assert.Equal(t, anthropicVersion, gotVersion)

	// system 消息不进 messages，提升为顶层字段
	assert.Equal(t, "you are an analyst", gotBody["system"])
	messages := gotBody["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].(map[string]any)["role"])

	assert.Equal(t, float64(defaultMaxTokens), gotBody["max_tokens"])

	// 内容块拼接
	assert.Equal(t, "part one part two", reply.Text)
}

func TestAnthropic_ChatEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer server.Close()

	p := newAnthropicProvider(server.URL, "k", "claude-3", 5*time.Second)
	_, err := p.Chat(context.Background(), []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestAnthropic_ChatRejectsUnknownRole(t *testing.T) {
	p := newAnthropicProvider("http://unused", "k", "claude-3", 5*time.Second)
	_, err := p.Chat(context.Background(), []models.ChatMessage{{Role: "tool", Content: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported role")
}

func TestAnthropic_ModelsUsesDisplayName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[
			{"id":"claude-3-opus-20240229","display_name":"Claude 3 Opus"},
			{"id":"claude-3-haiku-20240307"}
		]}`))
	}))
	defer server.Close()

	p := newAnthropicProvider(server.URL, "k", "claude-3", 5*time.Second)
	list, err := p.Models(context.Background())
	require.NoError(t, err)

	// "claude 3 opus" 的空格排在 "claude-3-..." 的连字符前面
	require.Len(t, list, 2)
	assert.Equal(t, ModelInfo{Label: "Claude 3 Opus", Value: "claude-3-opus-20240229"}, list[0])
	assert.Equal(t, ModelInfo{Label: "claude-3-haiku-20240307", Value: "claude-3-haiku-20240307"}, list[1])
}
