// Package prompts assembles the system directive for the oracle: the closed
// tool catalog, the caller identity block, and the referenced-user roster
// with redaction by reference type.
package prompts

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/soypete/pedrobook/pkg/identity"
	"github.com/soypete/pedrobook/pkg/timeutil"
	"github.com/soypete/pedrobook/pkg/tools"
)

// redacted marks a field that is known internally but must not be shown.
const redacted = "(redacted)"

// rosterEntry is the projection of a Reference that is allowed to appear in
// the directive. The projection is the privacy policy: a person who entered
// the conversation by email must not have their username revealed, and vice
// versa, even when both are known internally.
type rosterEntry struct {
	ID       string
	Username string
	Email    string
}

// projectReference applies the redaction policy for one reference.
func projectReference(ref identity.Reference) rosterEntry {
	entry := rosterEntry{ID: "(non user)"}
	if ref.ID != 0 {
		entry.ID = fmt.Sprintf("%d", ref.ID)
	}

	switch ref.Type {
	case identity.RefFromUsername:
		entry.Username = ref.Username
		if ref.Email != "" {
			entry.Email = redacted
		}
	case identity.RefFromEmail:
		entry.Email = ref.Email
		if ref.Username != "" {
			entry.Username = redacted
		}
	default:
		entry.Username = ref.Username
		entry.Email = ref.Email
	}

	return entry
}

// BuildDirective renders the full system directive. Tool specs surface in
// registration order; schemas list names and parameter contracts only.
// Credentials stay in bound executor context and never reach the model.
func BuildDirective(reg *tools.Registry, caller identity.UserRecord, refs []identity.Reference, now time.Time) (string, error) {
	var sb strings.Builder

	sb.WriteString("You are a scheduling assistant. Decide which single tool call, if any, satisfies the request.\n\n")

	sb.WriteString("# Available Tools\n\n")
	for _, spec := range reg.Specs() {
		sb.WriteString(formatSpec(spec))
		sb.WriteString("\n")
	}

	sb.WriteString("# Tool Call Format\n\n")
	sb.WriteString("To call a tool, output exactly one JSON object and nothing else:\n")
	sb.WriteString("```json\n")
	sb.WriteString("{\"tool\": \"tool_name\", \"tool_input\": {\"param\": \"value\"}}\n")
	sb.WriteString("```\n")
	sb.WriteString("All times in tool arguments are UTC, ISO 8601. ")
	sb.WriteString("If no tool applies, answer in plain text. Never invent tool names or parameters.\n\n")

	sb.WriteString("# Caller\n\n")
	localNow, err := timeutil.ToLocal(now, caller.TimeZone)
	if err != nil {
		return "", fmt.Errorf("failed to render caller local time: %w", err)
	}
	sb.WriteString(fmt.Sprintf("- id: %d\n", caller.ID))
	sb.WriteString(fmt.Sprintf("- username: %s\n", caller.Username))
	sb.WriteString(fmt.Sprintf("- local time: %s\n", localNow))
	sb.WriteString(fmt.Sprintf("- time zone: %s\n", caller.TimeZone))

	if len(refs) > 0 {
		sb.WriteString("\n# Referenced Users\n\n")
		for _, ref := range refs {
			entry := projectReference(ref)
			sb.WriteString(fmt.Sprintf("- id: %s", entry.ID))
			if entry.Username != "" {
				sb.WriteString(fmt.Sprintf(", username: %s", entry.Username))
			}
			if entry.Email != "" {
				sb.WriteString(fmt.Sprintf(", email: %s", entry.Email))
			}
			sb.WriteString("\n")
		}
	}

	return sb.String(), nil
}

// formatSpec renders one tool's name, description, and parameter contract.
func formatSpec(spec tools.Spec) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("## %s\n", spec.Name))
	sb.WriteString(spec.Description + "\n")

	params := spec.Parameters
	if params == nil || len(params.Properties) == 0 {
		sb.WriteString("Parameters: none\n")
		return sb.String()
	}

	requiredSet := make(map[string]bool, len(params.Required))
	for _, name := range params.Required {
		requiredSet[name] = true
	}

	sb.WriteString("Parameters:\n")
	for _, name := range sortedKeys(params.Properties) {
		prop := params.Properties[name]
		line := fmt.Sprintf("- %s (%s)", name, prop.Type)
		if requiredSet[name] {
			line += " (required)"
		}
		if prop.Description != "" {
			line += ": " + prop.Description
		}
		sb.WriteString(line + "\n")
		if len(prop.Enum) > 0 {
			values := make([]string, len(prop.Enum))
			for i, v := range prop.Enum {
				values[i] = fmt.Sprintf("%v", v)
			}
			sb.WriteString("  Allowed values: " + strings.Join(values, ", ") + "\n")
		}
		if prop.Type == "object" && len(prop.Properties) > 0 {
			for _, sub := range sortedKeys(prop.Properties) {
				subProp := prop.Properties[sub]
				subLine := fmt.Sprintf("  - %s.%s (%s)", name, sub, subProp.Type)
				if subProp.Description != "" {
					subLine += ": " + subProp.Description
				}
				sb.WriteString(subLine + "\n")
			}
		}
	}

	return sb.String()
}

// sortedKeys keeps parameter listings deterministic.
func sortedKeys(m map[string]*tools.Schema) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
