package models

// 时间窗口类型
const (
	WindowDashboard = "dashboard" // 使用面板当前查看范围
	WindowRelative  = "relative"  // now - duration .. now
	WindowAbsolute  = "absolute"  // 显式 from/to
)

// WindowSpec 时间窗口说明
// relative 时 Amount+Unit 有效（Unit ∈ s/m/h/d），absolute 时 From/To 有效（毫秒）
type WindowSpec struct {
	Type   string `json:"type"`
	Amount int    `json:"amount,omitempty"`
	Unit   string `json:"unit,omitempty"`
	From   int64  `json:"from,omitempty"`
	To     int64  `json:"to,omitempty"`
}

// ForwardConfig 控制端点转发配置
// Headers 为多行 "Name: Value" 文本，每行一条
type ForwardConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url,omitempty"`
	Method  string `json:"method,omitempty"`
	Headers string `json:"headers,omitempty"`
}

// PullSourceConfig 拉取模式数据源（PostgreSQL iot_timeseries）
// 推模式（刷新事件内联 Frames）的会话不配置此项
type PullSourceConfig struct {
	DeviceIDs    []string `json:"device_ids"`
	Measurements []string `json:"measurements"`
}

// SessionConfig 面板会话配置
type SessionConfig struct {
	Provider         string            `json:"provider"`
	Model            string            `json:"model,omitempty"`
	APIKey           string            `json:"api_key,omitempty"`
	BaseURL          string            `json:"base_url,omitempty"`
	SystemPrompt     string            `json:"system_prompt,omitempty"`
	AutoPrompt       string            `json:"auto_prompt,omitempty"` // 自动更新周期使用的默认提问
	SelectedFields   []string          `json:"selected_fields"`
	Window           WindowSpec        `json:"window"`
	AutoUpdate       bool              `json:"auto_update"`
	IncludePanelData bool              `json:"include_panel_data"`
	UpdateInterval   int               `json:"update_interval_seconds,omitempty"` // 自动更新节拍（秒）
	Forward          ForwardConfig     `json:"forward"`
	PullSource       *PullSourceConfig `json:"pull_source,omitempty"`
}

// SessionState 会话运行状态（Redis 持久化，TTL 限定会话生命周期）
// Watermark 为毫秒时间戳：nil 表示基线未建立（首次手动带数据发送后才设置），
// 仅在自动更新周期完整成功后推进，只增不减，会话重置时清空。
// in-flight 互斥标志为进程内状态，不落 Redis。
type SessionState struct {
	SessionID     string        `json:"session_id"`
	TenantID      string        `json:"tenant_id"`
	Config        SessionConfig `json:"config"`
	Transcript    []ChatMessage `json:"transcript"`
	Watermark     *int64        `json:"watermark,omitempty"`
	PendingPrompt string        `json:"pending_prompt,omitempty"` // 排队的临时提问，每个周期至多消费一次
	LastError     string        `json:"last_error,omitempty"`
	CreatedAt     int64         `json:"created_at"`
	UpdatedAt     int64         `json:"updated_at"`
}

// AdvanceWatermark 推进水位线，只增不减，回退请求被忽略
func (s *SessionState) AdvanceWatermark(ts int64) {
	if s.Watermark == nil || ts > *s.Watermark {
		v := ts
		s.Watermark = &v
	}
}
