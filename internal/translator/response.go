package translator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/valpere/chaptran/internal/glossary"
)

type rawResponse struct {
	Translation string               `json:"translation"`
	Terms       []glossary.Candidate `json:"terms"`
}

// ParseResponse decodes the JSON object a model returns. Code fences and
// text around the object are ignored. Missing fields default to empty;
// anything that does not decode is ErrMalformed.
func ParseResponse(raw string) (*Response, error) {
	body, err := jsonObject(raw)
	if err != nil {
		return nil, err
	}
	var r rawResponse
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("failed to decode response: %v: %w", err, ErrMalformed)
	}
	return &Response{Translation: r.Translation, Terms: r.Terms}, nil
}

// ParseTerms decodes an extraction response. A bare JSON array of terms is
// accepted as well as {"terms": [...]}.
func ParseTerms(raw string) ([]glossary.Candidate, error) {
	trimmed := stripFences(raw)
	if strings.HasPrefix(trimmed, "[") {
		var terms []glossary.Candidate
		if err := json.Unmarshal([]byte(trimmed), &terms); err != nil {
			return nil, fmt.Errorf("failed to decode terms: %v: %w", err, ErrMalformed)
		}
		return terms, nil
	}
	r, err := ParseResponse(raw)
	if err != nil {
		return nil, err
	}
	return r.Terms, nil
}

func jsonObject(raw string) (string, error) {
	s := stripFences(raw)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object in response: %w", ErrMalformed)
	}
	return s[start : end+1], nil
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
