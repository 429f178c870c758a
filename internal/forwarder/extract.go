package forwarder

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrExtraction 模型输出中找不到可解析的 JSON 载荷
	ErrExtraction = errors.New("no json payload found in model output")
	// ErrValidation 载荷顶层不是数组
	ErrValidation = errors.New("control payload must be an array")
)

// reservedResponseField 间接应答约定：外层 JSON 用该字段包一层字符串化的真实载荷
const reservedResponseField = "llmResponse"

// fencedJSONRe 匹配 ```json 围栏代码块
var fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(.*?)```")

// Extract 从模型文本中提取结构化载荷
// 按固定顺序尝试，先成功者生效：
// 1. 整段文本直接按 JSON 解析
// 2. 第 1 步结果带字符串型保留字段 "llmResponse" 时，解析该字符串
// 3. 保留字段字符串解析失败时，在其中找 ```json 围栏块解析
// 4. 第 1 步整体失败时，在原始文本中找 ```json 围栏块解析
func Extract(raw string) (any, error) {
	var outer any
	if err := json.Unmarshal([]byte(raw), &outer); err == nil {
		if obj, ok := outer.(map[string]any); ok {
			if nested, ok := obj[reservedResponseField].(string); ok {
				if inner, ok := tryParse(nested); ok {
					return inner, nil
				}
				if block, ok := fencedJSON(nested); ok {
					if inner, ok := tryParse(block); ok {
						return inner, nil
					}
				}
			}
		}
		return outer, nil
	}

	if block, ok := fencedJSON(raw); ok {
		if v, ok := tryParse(block); ok {
			return v, nil
		}
	}

	return nil, ErrExtraction
}

func tryParse(text string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, false
	}
	return v, true
}

func fencedJSON(text string) (string, bool) {
	m := fencedJSONRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// ValidatePayload 强制载荷顶层为数组
// 这是与模型提示词的约定，不是泛化的 JSON 通道：对象等其他合法 JSON 一律拒绝
func ValidatePayload(v any) ([]any, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, ErrValidation
	}
	return arr, nil
}

// ParseHeaderSpec 解析多行 "Name: Value" 头配置
// 非法行（冒号数不为一）静默跳过
func ParseHeaderSpec(spec string) map[string]string {
	headers := make(map[string]string)
	for _, line := range strings.Split(spec, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Count(line, ":") != 1 {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		name := strings.TrimSpace(parts[0])
		if name == "" {
			continue
		}
		headers[name] = strings.TrimSpace(parts[1])
	}
	return headers
}
