package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"wisefido-insight/internal/models"
)

const (
	anthropicVersion = "2023-06-01"
	defaultMaxTokens = 2048
)

// anthropicProvider Anthropic Messages API 客户端
type anthropicProvider struct {
	model      string
	httpClient *resty.Client
}

func newAnthropicProvider(baseURL, apiKey, model string, timeout time.Duration) *anthropicProvider {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", apiKey).
		SetHeader("anthropic-version", anthropicVersion)

	return &anthropicProvider{
		model:      model,
		httpClient: client,
	}
}

// anthropicRequest system 提示不进消息列表，单独放顶层字段
type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse 应答是内容块列表，text 块拼接成完整文本
type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p *anthropicProvider) Name() string {
	return "anthropic"
}

// Chat 调用 /v1/messages
func (p *anthropicProvider) Chat(ctx context.Context, messages []models.ChatMessage) (*Reply, error) {
	if p.model == "" {
		return nil, &ProviderError{Provider: "anthropic", Message: "model is required"}
	}

	request := anthropicRequest{
		Model:     p.model,
		MaxTokens: defaultMaxTokens,
	}
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			if request.System == "" {
				request.System = m.Content
			}
		case models.RoleUser, models.RoleAssistant:
			request.Messages = append(request.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
		default:
			return nil, &ProviderError{Provider: "anthropic", Message: fmt.Sprintf("unsupported role: %s", m.Role)}
		}
	}

	var response anthropicResponse
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		Post("/v1/messages")
	if err != nil {
		return nil, &ProviderError{Provider: "anthropic", Message: fmt.Sprintf("request failed: %v", err)}
	}
	if !resp.IsSuccess() {
		return nil, apiError("anthropic", resp)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, &ProviderError{Provider: "anthropic", Message: "empty response"}
	}

	return &Reply{Text: strings.TrimSpace(text.String())}, nil
}

// Models 拉取 /v1/models，label 优先用 display_name
func (p *anthropicProvider) Models(ctx context.Context) ([]ModelInfo, error) {
	var response modelListResponse
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetResult(&response).
		Get("/v1/models")
	if err != nil {
		return nil, &ProviderError{Provider: "anthropic", Message: fmt.Sprintf("request failed: %v", err)}
	}
	if !resp.IsSuccess() {
		return nil, apiError("anthropic", resp)
	}

	list := make([]ModelInfo, 0, len(response.Data))
	for _, m := range response.Data {
		if m.ID == "" {
			continue
		}
		label := m.DisplayName
		if label == "" {
			label = m.ID
		}
		list = append(list, ModelInfo{Label: label, Value: m.ID})
	}
	sortModels(list)
	return list, nil
}
