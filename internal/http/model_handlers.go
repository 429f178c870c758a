package httpapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"wisefido-insight/internal/llm"
)

// ModelLister 模型发现入口（llm.Caller）
type ModelLister interface {
	Models(ctx context.Context, cfg llm.Config) ([]llm.ModelInfo, error)
}

// ModelHandler 模型发现 API
type ModelHandler struct {
	caller ModelLister
	logger *zap.Logger
}

// NewModelHandler 创建模型发现处理器
func NewModelHandler(caller ModelLister, logger *zap.Logger) *ModelHandler {
	return &ModelHandler{
		caller: caller,
		logger: logger,
	}
}

type listModelsRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
}

// ListModels POST /insight/api/v1/models
// 前端配置面板用：按连接参数拉取可选模型列表
func (h *ModelHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	var req listModelsRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}
	if req.Provider == "" {
		writeJSON(w, http.StatusOK, Fail("provider is required"))
		return
	}

	list, err := h.caller.Models(r.Context(), llm.Config{
		Provider: req.Provider,
		APIKey:   req.APIKey,
		BaseURL:  req.BaseURL,
	})
	if err != nil {
		h.logger.Warn("Model discovery failed",
			zap.String("provider", req.Provider),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(list))
}
