package orchestrator

import (
	"fmt"
	"strings"

	"github.com/soypete/pedrobook/pkg/tools"
)

// Outcome classifies how one invocation ended. It is recorded in the
// transcript store and drives nothing else; every outcome still produces a
// text reply.
type Outcome string

const (
	OutcomeAnswered         Outcome = "answered"          // oracle replied in plain text
	OutcomeCompleted        Outcome = "completed"         // tool executed
	OutcomeSelectionInvalid Outcome = "selection_invalid" // unknown tool name
	OutcomeSchemaInvalid    Outcome = "schema_invalid"    // arguments failed validation
	OutcomeExecutionFailed  Outcome = "execution_failed"  // provider/executor failure
)

// ToolSelectionError reports that the oracle named a tool outside the
// registry. Recoverable: the human gets a clarification request.
type ToolSelectionError struct {
	Tool string
}

func (e *ToolSelectionError) Error() string {
	return fmt.Sprintf("oracle selected unknown tool %q", e.Tool)
}

// selectionReply is the clarification surfaced for a ToolSelectionError.
func selectionReply(e *ToolSelectionError) string {
	return fmt.Sprintf(
		"I wasn't sure how to handle that: %q is not something I can do. "+
			"I can check availability, list bookings, create, update or cancel a booking, or send a confirmation email. "+
			"Could you rephrase your request?", e.Tool)
}

// malformedReply covers a tool-call attempt that did not parse. The raw
// response is never shown.
func malformedReply() string {
	return "I had trouble working out which action that needed. Could you rephrase your request?"
}

// violationReply names the missing or malformed fields so the next
// conversation turn can supply them.
func violationReply(v *tools.SchemaViolationError) string {
	return fmt.Sprintf(
		"I couldn't complete that request: %s. Could you provide the missing details?",
		strings.Join(v.Problems, "; "))
}

// executionReply folds a downstream failure into an apologetic explanation;
// raw errors never reach the human.
func executionReply(err error) string {
	return fmt.Sprintf(
		"Sorry, something went wrong while talking to the booking service (%v). "+
			"Nothing was changed on your calendar; please try again in a moment.", err)
}

// oracleReply covers a failure to reach the language service at all.
func oracleReply() string {
	return "Sorry, I couldn't process that message right now. Please try again in a moment."
}
