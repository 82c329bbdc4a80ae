package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n```")

// ParseToolCall extracts the single structured tool call from an oracle
// response, if there is one. A response that is not a tool call is the
// oracle's plain-text answer and is returned to the conversation as-is.
//
// The accepted shape is {"tool": <name>, "tool_input": <args>}; a code-fence
// wrapper around it is tolerated. Anything else (prose, partial JSON, a
// JSON object without a tool name) parses as no-call.
func ParseToolCall(response string) (*ToolCall, bool) {
	trimmed := strings.TrimSpace(response)

	if call, ok := tryParse(trimmed); ok {
		return call, true
	}

	for _, match := range codeFenceRe.FindAllStringSubmatch(trimmed, -1) {
		if len(match) < 2 {
			continue
		}
		if call, ok := tryParse(strings.TrimSpace(match[1])); ok {
			return call, true
		}
	}

	return nil, false
}

// LooksLikeToolCall reports whether the response reads as an attempted tool
// call (a leading JSON object, or a fenced one) even if it failed to parse.
// The conversation loop treats a malformed attempt as a selection failure
// rather than echoing the broken JSON back to the human.
func LooksLikeToolCall(response string) bool {
	trimmed := strings.TrimSpace(response)
	if strings.HasPrefix(trimmed, "{") {
		return true
	}
	for _, match := range codeFenceRe.FindAllStringSubmatch(trimmed, -1) {
		if len(match) >= 2 && strings.HasPrefix(strings.TrimSpace(match[1]), "{") {
			return true
		}
	}
	return false
}

func tryParse(s string) (*ToolCall, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var call ToolCall
	if err := json.Unmarshal([]byte(s), &call); err != nil || call.Tool == "" {
		return nil, false
	}
	if call.Input == nil {
		call.Input = map[string]interface{}{}
	}
	return &call, true
}
