package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONResponsePlain(t *testing.T) {
	in := `{"match_rate":0.8,"feedback":"ok"}`
	assert.Equal(t, in, CleanJSONResponse(in))
}

func TestCleanJSONResponseMarkdownFence(t *testing.T) {
	in := "```json\n{\"score\": 7}\n```"
	assert.Equal(t, `{"score": 7}`, CleanJSONResponse(in))
}

func TestCleanJSONResponseSurroundingProse(t *testing.T) {
	in := "Here is the evaluation:\n{\"feedback\": \"strong {Go} skills\"}\nHope this helps."
	assert.Equal(t, `{"feedback": "strong {Go} skills"}`, CleanJSONResponse(in))
}

func TestCleanJSONResponseNestedObjects(t *testing.T) {
	in := `text {"a": {"b": 1}, "c": 2} trailing`
	assert.Equal(t, `{"a": {"b": 1}, "c": 2}`, CleanJSONResponse(in))
}

func TestCleanJSONResponseTrailingComma(t *testing.T) {
	in := `{"a": 1, "b": 2,}`
	assert.Equal(t, `{"a": 1, "b": 2}`, CleanJSONResponse(in))
}

func TestCleanJSONResponseNoObject(t *testing.T) {
	assert.Equal(t, "no json here", CleanJSONResponse("no json here"))
}
