package judge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eriker75/onenglish-sub004/internal/domain"
)

// Parse extracts the first well-formed JSON object from a judge reply and
// decodes it. The object must carry a boolean is_correct.
func Parse(reply string) (*Judgement, error) {
	obj, ok := FirstJSONObject(StripCodeFences(reply))
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in reply", domain.ErrMalformedJudgeResponse)
	}

	var raw struct {
		IsCorrect  *bool           `json:"is_correct"`
		Score      *float64        `json:"score"`
		FeedbackEN string          `json:"feedback_en"`
		FeedbackES string          `json:"feedback_es"`
		Feedback   string          `json:"feedback"`
		ValidItems json.RawMessage `json:"valid_items"`
		Transcript string          `json:"transcript"`
	}
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedJudgeResponse, err)
	}
	if raw.IsCorrect == nil {
		return nil, fmt.Errorf("%w: missing is_correct", domain.ErrMalformedJudgeResponse)
	}

	j := &Judgement{
		IsCorrect:  *raw.IsCorrect,
		Score:      raw.Score,
		FeedbackEN: raw.FeedbackEN,
		FeedbackES: raw.FeedbackES,
		Transcript: raw.Transcript,
	}
	if j.FeedbackEN == "" {
		j.FeedbackEN = raw.Feedback
	}
	if len(raw.ValidItems) > 0 && string(raw.ValidItems) != "null" {
		if err := json.Unmarshal(raw.ValidItems, &j.ValidItems); err != nil {
			return nil, fmt.Errorf("%w: valid_items must be a list of strings", domain.ErrMalformedJudgeResponse)
		}
	}
	return j, nil
}

// StripCodeFences removes a surrounding ``` or ```json fence
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the language tag line.
		if !strings.Contains(s[:nl], "{") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// FirstJSONObject scans s for the first balanced {...} span that is valid
// JSON. Braces inside strings are ignored.
func FirstJSONObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end, ok := matchBrace(s, start); ok {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at open
func matchBrace(s string, open int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
