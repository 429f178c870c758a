package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"wisefido-insight/internal/models"
)

const (
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultXAIBaseURL       = "https://api.x.ai/v1"
	defaultGlamaBaseURL     = "https://glama.ai/api/gateway/openai/v1"
	defaultAnthropicBaseURL = "https://api.anthropic.com"

	defaultOpenAIModel = "gpt-3.5-turbo"
)

// Config 模型调用所需的连接参数，来自会话配置
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// Reply 模型应答
// Trace 是剥离出来的推理过程，只存档不转发
type Reply struct {
	Text  string
	Trace string
}

// ModelInfo 供前端下拉框使用的模型条目
type ModelInfo struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Provider 模型供应商适配器
type Provider interface {
	Name() string
	Chat(ctx context.Context, messages []models.ChatMessage) (*Reply, error)
	Models(ctx context.Context) ([]ModelInfo, error)
}

// ProviderError 供应商调用错误
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s provider error: %s", e.Provider, e.Message)
}

// NewProvider 按供应商名创建适配器
// openai/grok/glama/vllm 走 OpenAI 兼容协议，只是 base URL 不同；
// anthropic 走 Messages API；ollama 直连本地 host，无鉴权。
// 这里只校验连接参数；模型名在 Chat 时校验，列模型不需要先选模型
func NewProvider(cfg Config, timeout time.Duration) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai", "chatgpt":
		if cfg.APIKey == "" {
			return nil, &ProviderError{Provider: "openai", Message: "api key is required"}
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultOpenAIBaseURL
		}
		model := cfg.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		return newOpenAICompatible("openai", baseURL, cfg.APIKey, model, timeout), nil

	case "grok", "xai":
		if cfg.APIKey == "" {
			return nil, &ProviderError{Provider: "grok", Message: "api key is required"}
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultXAIBaseURL
		}
		return newOpenAICompatible("grok", baseURL, cfg.APIKey, cfg.Model, timeout), nil

	case "glama":
		if cfg.APIKey == "" {
			return nil, &ProviderError{Provider: "glama", Message: "api key is required"}
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultGlamaBaseURL
		}
		return newOpenAICompatible("glama", baseURL, cfg.APIKey, cfg.Model, timeout), nil

	case "vllm":
		if cfg.BaseURL == "" {
			return nil, &ProviderError{Provider: "vllm", Message: "base url is required"}
		}
		// vLLM 的 OpenAI 兼容端点挂在 /v1 下
		baseURL := cfg.BaseURL
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL = strings.TrimRight(baseURL, "/") + "/v1"
		}
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "EMPTY"
		}
		return newOpenAICompatible("vllm", baseURL, apiKey, cfg.Model, timeout), nil

	case "anthropic":
		if cfg.APIKey == "" {
			return nil, &ProviderError{Provider: "anthropic", Message: "api key is required"}
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultAnthropicBaseURL
		}
		return newAnthropicProvider(baseURL, cfg.APIKey, cfg.Model, timeout), nil

	case "ollama":
		// ollama 没有 API key，BaseURL 即 host 地址
		host := cfg.BaseURL
		if host == "" {
			host = cfg.APIKey
		}
		if host == "" {
			return nil, &ProviderError{Provider: "ollama", Message: "host url is required"}
		}
		return newOllamaProvider(host, cfg.Model, timeout), nil

	default:
		return nil, &ProviderError{Provider: cfg.Provider, Message: "unsupported llm provider"}
	}
}

// modelListResponse OpenAI/Anthropic 风格的模型列表响应 {data:[{id,...}]}
type modelListResponse struct {
	Data []struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	} `json:"data"`
}

// sortModels 按 label 排序，忽略大小写
func sortModels(list []ModelInfo) {
	sort.Slice(list, func(i, j int) bool {
		return strings.ToLower(list[i].Label) < strings.ToLower(list[j].Label)
	})
}

// apiError 从错误响应提取消息（OpenAI 风格 {"error":{"message":...}}），
// 解析不出来就截断原始响应体
func apiError(provider string, resp *resty.Response) *ProviderError {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	message := ""
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		message = body.Error.Message
	}
	if message == "" {
		message = truncate(resp.String(), 500)
	}
	return &ProviderError{Provider: provider, StatusCode: resp.StatusCode(), Message: message}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
