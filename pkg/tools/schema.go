package tools

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is the JSON-schema-shaped parameter contract declared by a tool.
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []interface{}      `json:"enum,omitempty"`
	Description string             `json:"description,omitempty"`

	// AdditionalProperties defaults to false at the top level: unknown
	// argument keys are rejected before a call reaches an executor.
	AdditionalProperties interface{} `json:"additionalProperties,omitempty"`
}

// SchemaViolationError reports arguments that fail a tool's declared
// contract. It is recoverable: the conversation loop surfaces the problems
// back to the human instead of executing the tool.
type SchemaViolationError struct {
	Tool     string
	Problems []string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("arguments for %s failed validation: %s", e.Tool, strings.Join(e.Problems, "; "))
}

// validateArgs checks args against the schema: every required key present,
// every present key's value of the declared type, unknown keys rejected.
func validateArgs(toolName string, schema *Schema, args map[string]interface{}) error {
	var problems []string

	// Explicit required-key pass first so missing fields get named plainly.
	for _, key := range schema.Required {
		if _, ok := args[key]; !ok {
			problems = append(problems, fmt.Sprintf("missing required parameter %q", key))
		}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	documentLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error for %s: %w", toolName, err)
	}

	if !result.Valid() {
		for _, resultErr := range result.Errors() {
			msg := resultErr.String()
			if !containsProblem(problems, msg) {
				problems = append(problems, msg)
			}
		}
	}

	if len(problems) > 0 {
		return &SchemaViolationError{Tool: toolName, Problems: problems}
	}
	return nil
}

// containsProblem suppresses gojsonschema's duplicate of the explicit
// required-key message.
func containsProblem(problems []string, msg string) bool {
	for _, p := range problems {
		if strings.Contains(msg, "is required") && strings.Contains(p, "missing required parameter") {
			return true
		}
	}
	return false
}
