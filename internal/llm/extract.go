package llm

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/docflow/internal/record"
)

var reFence = regexp.MustCompile("```[a-zA-Z0-9_-]*\\s*([\\s\\S]*?)```")

// ExtractJSON pulls a JSON object out of a free-form model reply. Fenced code blocks are tried
// first, in order; then the span from the first '{' to the last '}' of the whole reply.
func ExtractJSON(reply string) (*record.Record, bool) {
	for _, m := range reFence.FindAllStringSubmatch(reply, -1) {
		if r, ok := decodeBraces(m[1]); ok {
			return r, true
		}
	}
	return decodeBraces(reply)
}

func decodeBraces(s string) (*record.Record, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return nil, false
	}
	r, err := record.Decode([]byte(s[start : end+1]))
	if err != nil {
		return nil, false
	}
	return r, true
}
