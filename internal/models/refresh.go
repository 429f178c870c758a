package models

import "encoding/json"

// RefreshEvent insight:refresh:stream 消息格式
// 这是面板刷新事件：推模式下 Frames 内联本次快照，
// 拉模式下 Frames 为空（tick），由引擎查询 PostgreSQL 取数。
// RangeFrom/RangeTo 为面板当前查看范围（毫秒），仅 dashboard 窗口类型使用。
type RefreshEvent struct {
	EventID   string  `json:"event_id"`
	SessionID string  `json:"session_id"`
	TenantID  string  `json:"tenant_id"`
	Timestamp int64   `json:"timestamp"`
	RangeFrom int64   `json:"range_from,omitempty"`
	RangeTo   int64   `json:"range_to,omitempty"`
	Frames    []Frame `json:"frames,omitempty"`
}

// ParseRefreshEvent 从 Redis Streams 消息解析刷新事件
func ParseRefreshEvent(values map[string]interface{}) (*RefreshEvent, error) {
	// 从 Values 中提取 data 字段（JSON 字符串）
	dataStr, ok := values["data"].(string)
	if !ok {
		return nil, ErrInvalidEventFormat
	}

	var event RefreshEvent
	if err := json.Unmarshal([]byte(dataStr), &event); err != nil {
		return nil, err
	}

	if event.SessionID == "" {
		return nil, &EventFormatError{Message: "missing session_id"}
	}

	return &event, nil
}

// ErrInvalidEventFormat 事件格式错误
var ErrInvalidEventFormat = &EventFormatError{Message: "invalid event format"}

// EventFormatError 事件格式错误类型
type EventFormatError struct {
	Message string
}

func (e *EventFormatError) Error() string {
	return e.Message
}
