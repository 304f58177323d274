package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ParseError 表示模型输出无法解析为期望的 JSON 结构。
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return "llm output is not valid json: " + e.Reason
}

// StripFence 去掉模型输出外层的 Markdown 代码块标记。
func StripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	// 跳过语言标识，例如 ```json 或 ```latex
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	} else {
		t = ""
	}
	t = strings.TrimSpace(t)
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

// extractObject 在文本中截取第一个 '{' 到最后一个 '}' 之间的内容。
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// DecodeJSON 把模型输出解析到 out。schema 非空时先用 JSON Schema 校验。
func DecodeJSON(raw, schema string, out any) error {
	body := StripFence(raw)
	var doc map[string]any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		obj, ok := extractObject(body)
		if !ok {
			return &ParseError{Raw: raw, Reason: "no json object found"}
		}
		if err := json.Unmarshal([]byte(obj), &doc); err != nil {
			return &ParseError{Raw: raw, Reason: err.Error()}
		}
		body = obj
	}

	if schema != "" {
		res, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewGoLoader(doc))
		if err != nil {
			return &ParseError{Raw: raw, Reason: err.Error()}
		}
		if !res.Valid() {
			msgs := ""
			for _, e := range res.Errors() {
				msgs += fmt.Sprintf("%s; ", e.String())
			}
			return &ParseError{Raw: raw, Reason: "schema validation failed: " + msgs}
		}
	}

	if err := json.Unmarshal([]byte(body), out); err != nil {
		return &ParseError{Raw: raw, Reason: err.Error()}
	}
	return nil
}
