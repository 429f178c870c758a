package timeseries

import (
	"time"

	"wisefido-insight/internal/models"
)

// Batch 一次增量批：格式化时间戳 → 字段标识 → 数值
// 键为 ISO-8601 UTC 毫秒格式，JSON 序列化后键的字典序即时间序
type Batch map[string]map[string]float64

// timestampLayout 批键的时间格式
const timestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp 毫秒时间戳格式化为批键
func FormatTimestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(timestampLayout)
}

// DiffOptions 增量计算参数
type DiffOptions struct {
	From      int64
	To        int64
	Watermark *int64 // nil 表示全量（基线未建立时的手动发送）
	CadenceMS int64
}

// Diff 计算水位线之后的增量批
// 逐帧逐列解析字段标识，只纳入已选字段、时间戳严格大于水位线的采样，
// 跨序列按格式化时间戳合并；同一时间戳收到多个字段的值时全部保留
// （合并只新增键，不得覆盖其他字段已写入的键）。
// 新水位线为所有入批采样的最大时间戳；没有任何采样入批时为 nil——
// 调用方不得在 nil 上推进已存水位线，空批意味着"无需更新"而非错误
func Diff(frames []models.Frame, selectedIDs []string, opts DiffOptions) (Batch, *int64) {
	selected := make(map[string]bool, len(selectedIDs))
	for _, id := range selectedIDs {
		selected[id] = true
	}

	batch := make(Batch)
	var maxTS int64
	hasMax := false

	for _, frame := range frames {
		for _, field := range frame.Fields {
			id := FieldID(frame.Name, field)
			if !selected[id] {
				continue
			}

			samples, _ := SelectWindow(frame.Times, field.Values, SelectOptions{
				From:      opts.From,
				To:        opts.To,
				Since:     opts.Watermark,
				CadenceMS: opts.CadenceMS,
			})

			for _, s := range samples {
				key := FormatTimestamp(s.Timestamp)
				entry, ok := batch[key]
				if !ok {
					entry = make(map[string]float64)
					batch[key] = entry
				}
				entry[id] = s.Value

				if !hasMax || s.Timestamp > maxTS {
					maxTS = s.Timestamp
					hasMax = true
				}
			}
		}
	}

	if !hasMax {
		return batch, nil
	}
	return batch, &maxTS
}

// LatestTimestamp 快照内已选字段在窗口中的最大时间戳（不做水位线过滤）
// 手动带数据发送用它建立水位线基线
func LatestTimestamp(frames []models.Frame, selectedIDs []string, from, to int64) *int64 {
	selected := make(map[string]bool, len(selectedIDs))
	for _, id := range selectedIDs {
		selected[id] = true
	}

	var maxTS int64
	hasMax := false

	for _, frame := range frames {
		for _, field := range frame.Fields {
			if !selected[FieldID(frame.Name, field)] {
				continue
			}
			_, latest := SelectWindow(frame.Times, field.Values, SelectOptions{From: from, To: to})
			if latest != nil && (!hasMax || *latest > maxTS) {
				maxTS = *latest
				hasMax = true
			}
		}
	}

	if !hasMax {
		return nil
	}
	return &maxTS
}
