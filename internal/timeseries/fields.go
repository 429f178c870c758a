package timeseries

import (
	"strings"

	"wisefido-insight/internal/models"
)

// 字段标识推导使用的固定模式
const (
	labelThingID       = "thingId"
	labelThingIDLegacy = "tag_thingId"

	displayNameSentinel = "Value"

	measurementPrefix = "value_"
	measurementSuffix = "_properties_value"

	// FieldIDUnknown 无法推导出任何标识时的兜底值
	FieldIDUnknown = "unknown"
)

// MeasurementName 从字段原始名与显示名推导测点名
// 原始名带固定前后缀时剥离；否则用非 "Value" 占位的显示名；再否则回落原始名
func MeasurementName(f models.Field) string {
	if f.Name != "" {
		if strings.HasPrefix(f.Name, measurementPrefix) {
			return strings.TrimPrefix(f.Name, measurementPrefix)
		}
		if strings.HasSuffix(f.Name, measurementSuffix) {
			return strings.TrimSuffix(f.Name, measurementSuffix)
		}
	}
	if f.DisplayName != "" && f.DisplayName != displayNameSentinel {
		return f.DisplayName
	}
	return f.Name
}

// FieldID 推导一列序列的稳定标识，作为跨刷新周期的 join key
// 推导顺序：
// 1. 带 thingId 标签（或历史别名 tag_thingId）→ "{测点名}_{thingId}"
// 2. 显示名是 "Value" 占位且帧有独立名称 → 帧名称
// 3. 测点名
// 4. 字段原始名
// 5. "unknown"
func FieldID(frameName string, f models.Field) string {
	measurement := MeasurementName(f)

	if thingID := thingIDLabel(f.Labels); thingID != "" {
		return measurement + "_" + thingID
	}
	if f.DisplayName == displayNameSentinel && frameName != "" && frameName != displayNameSentinel {
		return frameName
	}
	if measurement != "" {
		return measurement
	}
	if f.Name != "" {
		return f.Name
	}
	return FieldIDUnknown
}

func thingIDLabel(labels map[string]string) string {
	if v, ok := labels[labelThingID]; ok && v != "" {
		return v
	}
	if v, ok := labels[labelThingIDLegacy]; ok && v != "" {
		return v
	}
	return ""
}

// FieldRef 指向快照中的某一帧某一列
type FieldRef struct {
	FrameIndex int
	FieldIndex int
}

// ResolveFields 解析一次快照内全部字段的标识
// 同一标识被多列命中时后写覆盖（保持既有选择兼容），冲突的标识一并返回，
// 由调用方决定告警方式
func ResolveFields(frames []models.Frame) (map[string]FieldRef, []string) {
	index := make(map[string]FieldRef)
	var collisions []string

	for fi, frame := range frames {
		for gi, field := range frame.Fields {
			id := FieldID(frame.Name, field)
			if _, exists := index[id]; exists {
				collisions = append(collisions, id)
			}
			index[id] = FieldRef{FrameIndex: fi, FieldIndex: gi}
		}
	}

	return index, collisions
}
