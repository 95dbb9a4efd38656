package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// 모델 응답 JSON 파싱/복구 (SSOT)

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ExtractJSON pulls the JSON object out of a model response. Models sometimes
// wrap output in markdown fences or lead with prose despite the JSON-only
// instruction, so we strip fences and cut to the outermost object.
func ExtractJSON(content string) (string, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return "", fmt.Errorf("empty response")
	}

	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in response")
	}

	return text[start : end+1], nil
}

// DecodeStrict unmarshals the extracted JSON with unknown fields rejected.
// One repair pass only: extraction above is the repair; a second failure is
// surfaced to the caller as-is so the stage can apply its fallback policy.
func DecodeStrict(content string, v interface{}) error {
	raw, err := ExtractJSON(content)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode stage payload: %w", err)
	}
	return nil
}

// Decode unmarshals the extracted JSON, tolerating unknown fields. Stages
// that accept commentary fields use this looser form.
func Decode(content string, v interface{}) error {
	raw, err := ExtractJSON(content)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode stage payload: %w", err)
	}
	return nil
}
