package tools

import "context"

// ExecutorFunc runs one validated tool call. Executors are bound to
// per-request context (provider credentials, caller identity, roster) at
// registration time; credentials never appear in tool arguments or in the
// catalog shown to the model.
type ExecutorFunc func(ctx context.Context, args map[string]interface{}) (*Result, error)

// Result represents a tool execution result
type Result struct {
	Success bool                   `json:"success"`
	Output  string                 `json:"output"`
	Error   string                 `json:"error,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// ErrorResult creates an error result with the given message
func ErrorResult(msg string) *Result {
	return &Result{
		Success: false,
		Error:   msg,
		Output:  "Error: " + msg,
	}
}
