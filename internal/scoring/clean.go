package scoring

import (
	"encoding/json"
	"regexp"
	"strings"
)

var trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

// CleanJSONResponse strips markdown fences and surrounding prose from a model
// response and returns the first balanced JSON object found.
func CleanJSONResponse(response string) string {
	response = removeMarkdownBlocks(response)
	response = extractJSON(response)
	response = fixCommonJSONIssues(response)
	return response
}

func removeMarkdownBlocks(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}

// extractJSON returns the first brace-balanced object, dropping any prose
// the model wrapped around it.
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return response
	}
	braceCount := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		ch := response[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			braceCount++
		case '}':
			braceCount--
			if braceCount == 0 {
				return response[start : i+1]
			}
		}
	}
	return response[start:]
}

func fixCommonJSONIssues(response string) string {
	var probe any
	if err := json.Unmarshal([]byte(response), &probe); err == nil {
		return response
	}
	return trailingCommaRe.ReplaceAllString(response, "$1")
}
