package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"wisefido-insight/internal/models"
)

// openAICompatible OpenAI 兼容协议客户端
// openai / grok / glama / vllm 共用，差别只在 base URL 和默认模型
type openAICompatible struct {
	name       string
	model      string
	httpClient *resty.Client
}

func newOpenAICompatible(name, baseURL, apiKey, model string, timeout time.Duration) *openAICompatible {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", "Bearer "+apiKey)

	return &openAICompatible{
		name:       name,
		model:      model,
		httpClient: client,
	}
}

// chatCompletionRequest /chat/completions 请求体
type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
}

// wireMessage Content 是纯文本或分段内容（带截图时）
type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *openAICompatible) Name() string {
	return p.name
}

// Chat 调用 /chat/completions 并取第一个候选应答
func (p *openAICompatible) Chat(ctx context.Context, messages []models.ChatMessage) (*Reply, error) {
	if p.model == "" {
		return nil, &ProviderError{Provider: p.name, Message: "model is required"}
	}

	request := chatCompletionRequest{
		Model:    p.model,
		Messages: toWireMessages(messages),
	}

	var response chatCompletionResponse
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		Post("/chat/completions")
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Message: fmt.Sprintf("request failed: %v", err)}
	}
	if !resp.IsSuccess() {
		return nil, apiError(p.name, resp)
	}
	if len(response.Choices) == 0 {
		return nil, &ProviderError{Provider: p.name, Message: "empty response"}
	}

	return &Reply{Text: strings.TrimSpace(response.Choices[0].Message.Content)}, nil
}

// Models 拉取 /models 列表
func (p *openAICompatible) Models(ctx context.Context) ([]ModelInfo, error) {
	var response modelListResponse
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetResult(&response).
		Get("/models")
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Message: fmt.Sprintf("request failed: %v", err)}
	}
	if !resp.IsSuccess() {
		return nil, apiError(p.name, resp)
	}

	list := make([]ModelInfo, 0, len(response.Data))
	for _, m := range response.Data {
		if m.ID == "" {
			continue
		}
		list = append(list, ModelInfo{Label: m.ID, Value: m.ID})
	}
	sortModels(list)
	return list, nil
}

// toWireMessages 带截图的消息拆成 text + image_url 分段
func toWireMessages(messages []models.ChatMessage) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		if m.Image != "" {
			out = append(out, wireMessage{
				Role: m.Role,
				Content: []contentPart{
					{Type: "text", Text: m.Content},
					{Type: "image_url", ImageURL: &imageURL{URL: m.Image}},
				},
			})
			continue
		}
		out = append(out, wireMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
