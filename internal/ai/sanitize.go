package ai

import (
	"encoding/json"
	"strings"

	"github.com/structhub/docintake/internal/common"
)

// StripFences removes common markdown code-fence wrapping from a model
// response. The model is instructed to return bare JSON but cannot be
// trusted to comply.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop a language tag like "json" on the opening fence
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		first := strings.TrimSpace(s[:i])
		if first == "" || !strings.ContainsAny(first, "{[") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// DecodeObject decodes untrusted model output into a JSON object. A decode
// failure is an AI-service error, not a crash.
func DecodeObject(raw string) (map[string]any, error) {
	cleaned := StripFences(raw)
	var m map[string]any
	if err := json.Unmarshal([]byte(cleaned), &m); err != nil {
		return nil, common.AIError("model returned non-JSON content", err)
	}
	if m == nil {
		return nil, common.AIError("model returned empty JSON", nil)
	}
	return m, nil
}
