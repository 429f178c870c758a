package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wisefido-insight/internal/models"
)

// panelDataHeader 面板数据上下文块的分隔标题
const panelDataHeader = "--- Panel Data (JSON) ---"

// Caller 统一的模型调用入口
// 负责拼装消息（系统提示、面板数据上下文）、超时控制和推理块剥离
type Caller struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewCaller 创建模型调用器
func NewCaller(timeout time.Duration, logger *zap.Logger) *Caller {
	return &Caller{
		timeout: timeout,
		logger:  logger,
	}
}

// Chat 调用会话配置的模型并返回拆分后的应答
// messages 以本轮用户消息结尾；panelData 非空时作为上下文块追加到末尾消息
func (c *Caller) Chat(ctx context.Context, cfg Config, systemPrompt string, messages []models.ChatMessage, panelData string) (*Reply, error) {
	provider, err := NewProvider(cfg, c.timeout)
	if err != nil {
		return nil, err
	}

	prepared := make([]models.ChatMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		prepared = append(prepared, models.ChatMessage{Role: models.RoleSystem, Content: systemPrompt})
	}
	prepared = append(prepared, messages...)

	if panelData != "" && len(prepared) > 0 {
		last := &prepared[len(prepared)-1]
		last.Content = last.Content + "\n\n" + panelDataHeader + "\n" + panelData
	}

	c.logger.Info("Calling model provider",
		zap.String("provider", provider.Name()),
		zap.String("model", cfg.Model),
		zap.Int("message_count", len(prepared)),
	)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reply, err := provider.Chat(ctx, prepared)
	if err != nil {
		c.logger.Error("Model call failed",
			zap.String("provider", provider.Name()),
			zap.Error(err),
		)
		return nil, err
	}

	answer, thought := SplitTrace(reply.Text)
	reply.Text = answer
	if thought != "" {
		if reply.Trace != "" {
			reply.Trace = reply.Trace + "\n\n" + thought
		} else {
			reply.Trace = thought
		}
	}

	return reply, nil
}

// Models 拉取指定供应商的可用模型列表
func (c *Caller) Models(ctx context.Context, cfg Config) ([]ModelInfo, error) {
	provider, err := NewProvider(cfg, c.timeout)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return provider.Models(ctx)
}
