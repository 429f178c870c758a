package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"wisefido-insight/internal/models"
)

// ollamaProvider 本地 Ollama 客户端，直连 host 无鉴权
type ollamaProvider struct {
	model      string
	httpClient *resty.Client
}

func newOllamaProvider(host, model string, timeout time.Duration) *ollamaProvider {
	client := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &ollamaProvider{
		model:      model,
		httpClient: client,
	}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaChatResponse 推理模型会在 thinking 字段单独返回思考过程
type ollamaChatResponse struct {
	Message struct {
		Role     string `json:"role"`
		Content  string `json:"content"`
		Thinking string `json:"thinking"`
	} `json:"message"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Model string `json:"model"`
		Name  string `json:"name"`
	} `json:"models"`
}

func (p *ollamaProvider) Name() string {
	return "ollama"
}

// Chat 调用 /api/chat，非流式
func (p *ollamaProvider) Chat(ctx context.Context, messages []models.ChatMessage) (*Reply, error) {
	if p.model == "" {
		return nil, &ProviderError{Provider: "ollama", Message: "model is required"}
	}

	request := ollamaChatRequest{
		Model:  p.model,
		Stream: false,
	}
	for _, m := range messages {
		request.Messages = append(request.Messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}

	var response ollamaChatResponse
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		Post("/api/chat")
	if err != nil {
		return nil, &ProviderError{Provider: "ollama", Message: fmt.Sprintf("request failed: %v", err)}
	}
	if !resp.IsSuccess() {
		return nil, apiError("ollama", resp)
	}
	if response.Message.Content == "" {
		return nil, &ProviderError{Provider: "ollama", Message: "empty response"}
	}

	return &Reply{
		Text:  strings.TrimSpace(response.Message.Content),
		Trace: strings.TrimSpace(response.Message.Thinking),
	}, nil
}

// Models 拉取本地模型列表 /api/tags
func (p *ollamaProvider) Models(ctx context.Context) ([]ModelInfo, error) {
	var response ollamaTagsResponse
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetResult(&response).
		Get("/api/tags")
	if err != nil {
		return nil, &ProviderError{Provider: "ollama", Message: fmt.Sprintf("request failed: %v", err)}
	}
	if !resp.IsSuccess() {
		return nil, apiError("ollama", resp)
	}

	list := make([]ModelInfo, 0, len(response.Models))
	for _, m := range response.Models {
		name := m.Model
		if name == "" {
			name = m.Name
		}
		if name == "" {
			continue
		}
		list = append(list, ModelInfo{Label: name, Value: name})
	}
	sortModels(list)
	return list, nil
}
