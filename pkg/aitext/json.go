package aitext

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractJSON pulls the first JSON object out of a model response. Models
// asked for JSON still wrap it in markdown fences or prose often enough
// that the raw text cannot be unmarshaled directly.
func ExtractJSON(text string) (string, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return "", eris.New("aitext: no JSON object in response")
	}
	return cleaned[start : end+1], nil
}

// DecodeJSON extracts and unmarshals the JSON object in a model response.
func DecodeJSON(text string, v any) error {
	obj, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return eris.Wrap(err, "aitext: unmarshal response JSON")
	}
	return nil
}
