package client

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/menta2k/video-altitude/pkg/types"
)

var reTrailing = regexp.MustCompile(`,(\s*[}\]])`)

// ParseAnalysisResult decodes a model reply. Replies that cannot be decoded
// become a zero-confidence fallback result rather than an error, so the
// caller can ask the user to measure by hand.
func ParseAnalysisResult(raw string) *types.AnalysisResult {
	raw = SanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return fallback("model returned non-JSON response")
	}

	var result types.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return fallback("failed to parse model response")
	}

	label := strings.ToLower(strings.TrimSpace(result.Reference.Label))
	if label == "" || label == "none" || result.Reference.Box.Empty() {
		return fallback("no reference object found")
	}
	return &result
}

// SanitizeModelJSON strips code fences, comments and trailing commas and
// keeps the outermost JSON object.
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = stripComments(raw)
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// stripComments drops // and /* */ comments that are outside string
// literals, so URLs in values survive.
func stripComments(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	inString, escaped := false, false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			b.WriteByte(c)
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
		switch {
		case c == '"':
			inString = true
		case c == '/' && i+1 < len(raw) && raw[i+1] == '/':
			for i < len(raw) && raw[i] != '\n' {
				i++
			}
			if i < len(raw) {
				b.WriteByte('\n')
			}
			continue
		case c == '/' && i+1 < len(raw) && raw[i+1] == '*':
			end := strings.Index(raw[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += end + 3
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func fallback(description string) *types.AnalysisResult {
	return &types.AnalysisResult{
		Reference: types.Detection{
			Label:      "none",
			Confidence: 0,
		},
		Description: description,
		Fallback:    true,
	}
}
