package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"learnhub-server/internal/model"
)

// ExtractResult 从 LLM 文本输出中截取分隔符之后的 JSON 片段。
// 解析策略：定位分隔符 → 找到首个 '[' 或 '{' → 截到最后一个 ']' 或 '}'。
func ExtractResult(output string) (string, error) {
	pos := strings.Index(output, model.SepToken)
	if pos == -1 {
		return "", fmt.Errorf("LLM 输出中未找到分隔符 %s", model.SepToken)
	}
	// 只保留分隔符之后的内容，避免被思考过程干扰
	fragment := output[pos+len(model.SepToken):]

	start := strings.IndexAny(fragment, "[{")
	if start == -1 {
		log.Warn().Str("fragment", fragment).Msg("⛔ JSON 起始符号未找到")
		return "", fmt.Errorf("未找到 JSON 起始符号")
	}
	fragment = fragment[start:]

	if end := strings.LastIndexAny(fragment, "]}"); end != -1 {
		fragment = fragment[:end+1]
	}
	return strings.TrimSpace(fragment), nil
}

// DecodeResult 提取并反序列化结果到 v
func DecodeResult(output string, v any) error {
	fragment, err := ExtractResult(output)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(fragment), v); err != nil {
		log.Warn().Str("fragment", fragment).Err(err).Msg("⛔ JSON 解析失败")
		return fmt.Errorf("JSON 解析失败: %v", err)
	}
	return nil
}

// DecodeList 与 DecodeResult 相同，但允许模型只返回单个对象
func DecodeList[T any](output string) ([]T, error) {
	fragment, err := ExtractResult(output)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(fragment, "{") {
		var one T
		if err := json.Unmarshal([]byte(fragment), &one); err != nil {
			return nil, fmt.Errorf("JSON 解析失败: %v", err)
		}
		return []T{one}, nil
	}
	var items []T
	if err := json.Unmarshal([]byte(fragment), &items); err != nil {
		return nil, fmt.Errorf("JSON 解析失败: %v", err)
	}
	return items, nil
}
