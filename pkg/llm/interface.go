// Package llm is the boundary to the language oracle: directive plus
// conversation input go in, exactly one structured tool call or a plain-text
// answer comes out. The orchestration core only depends on the Oracle
// interface, so it is testable with a deterministic stub.
package llm

import (
	"context"
	"encoding/json"
)

// Oracle proposes at most one tool call for a conversation turn.
type Oracle interface {
	Propose(ctx context.Context, directive, input string) (*Proposal, error)
}

// Proposal is the oracle's answer: a tool call or plain text, never both.
// Malformed marks a response that attempted a tool call but did not parse;
// Text then holds the raw response for diagnostics, not for display.
type Proposal struct {
	Call      *ToolCall
	Text      string
	Malformed bool
}

// ToolCall is one structured call produced by the oracle.
type ToolCall struct {
	Tool  string                 `json:"tool"`
	Input map[string]interface{} `json:"tool_input"`
}

// UnmarshalJSON accepts "name" for "tool" and "args"/"arguments" for
// "tool_input" as well, since models drift between the common spellings.
func (tc *ToolCall) UnmarshalJSON(data []byte) error {
	type Alias ToolCall

	aux := &struct {
		Name      string                 `json:"name"`
		Args      map[string]interface{} `json:"args"`
		Arguments map[string]interface{} `json:"arguments"`
		*Alias
	}{
		Alias: (*Alias)(tc),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if aux.Name != "" && tc.Tool == "" {
		tc.Tool = aux.Name
	}
	if tc.Input == nil {
		if aux.Args != nil {
			tc.Input = aux.Args
		} else if aux.Arguments != nil {
			tc.Input = aux.Arguments
		}
	}

	return nil
}
