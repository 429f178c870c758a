package models

// Field 数据帧中的一列数值序列
// Values 与所属 Frame 的 Times 等长，nil 表示该时刻无采样
type Field struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Values      []*float64        `json:"values"`
}

// Frame 一次面板刷新快照中的一个数据帧
// Times 为毫秒时间戳，按升序排列（乱序输入是调用方错误）
type Frame struct {
	Name   string  `json:"name,omitempty"`
	Times  []int64 `json:"times"`
	Fields []Field `json:"fields"`
}
