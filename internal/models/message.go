package models

// 会话消息角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage 会话消息（transcript 只追加，按提交顺序排列）
// Forwarded/WatermarkAfter 仅助手消息携带，供审计导出回放提交历史
type ChatMessage struct {
	Role           string `json:"role"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"timestamp"`
	Image          string `json:"image,omitempty"` // data-URL 格式截图，仅随请求上送
	Trace          string `json:"trace,omitempty"` // 模型推理过程，仅存档，不参与转发
	Forwarded      bool   `json:"forwarded,omitempty"`
	WatermarkAfter *int64 `json:"watermark_after,omitempty"`
}
