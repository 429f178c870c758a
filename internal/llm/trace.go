package llm

import (
	"regexp"
	"strings"
)

// 推理模型用标记块包裹思考过程，存档前从正文剥离
var reasoningBlockPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>(.*?)</think>`),
	regexp.MustCompile(`(?is)<thought>(.*?)</thought>`),
}

// SplitTrace 把推理块从应答文本中拆出来
// 返回去掉推理块的正文和拼接后的推理内容
func SplitTrace(text string) (answer, trace string) {
	answer = text
	var parts []string
	for _, re := range reasoningBlockPatterns {
		for _, match := range re.FindAllStringSubmatch(answer, -1) {
			if t := strings.TrimSpace(match[1]); t != "" {
				parts = append(parts, t)
			}
		}
		answer = re.ReplaceAllString(answer, "")
	}
	return strings.TrimSpace(answer), strings.Join(parts, "\n\n")
}
