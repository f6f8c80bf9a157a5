package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// DecodeJSON unmarshals model output into target, tolerating markdown code
// fences and leading prose that some models wrap around their JSON.
func DecodeJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty content")
	}

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	if err := json.Unmarshal([]byte(trimmed), target); err == nil {
		return nil
	}

	// Fall back to the outermost JSON object or array in the content.
	start := strings.IndexAny(trimmed, "{[")
	if start < 0 {
		return errors.New("no JSON payload found")
	}
	var end int
	if trimmed[start] == '{' {
		end = strings.LastIndex(trimmed, "}")
	} else {
		end = strings.LastIndex(trimmed, "]")
	}
	if end <= start {
		return errors.New("unterminated JSON payload")
	}
	return json.Unmarshal([]byte(trimmed[start:end+1]), target)
}
