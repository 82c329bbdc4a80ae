// Package orchestrator is the decision loop: it maps one free-text message
// to at most one validated tool call and a human-readable reply. Each Run is
// independent and stateless; retries and multi-turn clarification belong to
// the surrounding conversation, not to this loop.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/soypete/pedrobook/pkg/identity"
	"github.com/soypete/pedrobook/pkg/llm"
	"github.com/soypete/pedrobook/pkg/prompts"
	"github.com/soypete/pedrobook/pkg/tools"
)

// Request is the per-invocation context supplied by the caller. Nothing in
// it is mutated during a Run.
type Request struct {
	Caller     identity.UserRecord
	References []identity.Reference
}

// Transcript records one completed invocation for later inspection.
type Transcript struct {
	ID        string
	CallerID  int
	Input     string
	Tool      string
	Args      map[string]interface{}
	Outcome   Outcome
	Reply     string
	CreatedAt time.Time
}

// TranscriptStore persists transcripts. A nil store disables recording.
type TranscriptStore interface {
	SaveTranscript(ctx context.Context, t *Transcript) error
}

// Orchestrator runs the single-shot decision loop against a bound tool
// registry. Independent Runs may proceed concurrently; there is no shared
// mutable state.
type Orchestrator struct {
	oracle   llm.Oracle
	registry *tools.Registry
	store    TranscriptStore
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTranscriptStore enables transcript recording.
func WithTranscriptStore(store TranscriptStore) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithClock overrides the clock used for directive construction, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator over an already-bound registry.
func New(oracle llm.Oracle, registry *tools.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		oracle:   oracle,
		registry: registry,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run maps one input message to a reply. The only error it returns is the
// caller's own deadline or cancellation; every other failure path folds into
// a text reply so no invocation ever surfaces a raw error to the human.
func (o *Orchestrator) Run(ctx context.Context, input string, req Request) (string, error) {
	directive, err := prompts.BuildDirective(o.registry, req.Caller, req.References, o.now())
	if err != nil {
		return "", fmt.Errorf("failed to build directive: %w", err)
	}

	proposal, err := o.oracle.Propose(ctx, directive, input)
	if err != nil {
		if isCtxErr(ctx, err) {
			return "", err
		}
		return o.finish(ctx, req, input, nil, OutcomeExecutionFailed, oracleReply()), nil
	}

	// A response that tried to be a tool call but did not parse is a
	// selection failure; the broken JSON must not reach the human.
	if proposal.Malformed {
		return o.finish(ctx, req, input, nil, OutcomeSelectionInvalid, malformedReply()), nil
	}

	// Plain text means the oracle answered (or asked for clarification)
	// without selecting a tool; that text is the reply.
	if proposal.Call == nil {
		return o.finish(ctx, req, input, nil, OutcomeAnswered, proposal.Text), nil
	}

	call := proposal.Call
	if err := o.registry.ValidateCall(call.Tool, call.Input); err != nil {
		var unknown *tools.ErrUnknownTool
		if errors.As(err, &unknown) {
			return o.finish(ctx, req, input, call, OutcomeSelectionInvalid, selectionReply(&ToolSelectionError{Tool: call.Tool})), nil
		}
		var violation *tools.SchemaViolationError
		if errors.As(err, &violation) {
			return o.finish(ctx, req, input, call, OutcomeSchemaInvalid, violationReply(violation)), nil
		}
		return "", fmt.Errorf("failed to validate call: %w", err)
	}

	result, err := o.registry.Execute(ctx, call.Tool, call.Input)
	if err != nil {
		if isCtxErr(ctx, err) {
			return "", err
		}
		return o.finish(ctx, req, input, call, OutcomeExecutionFailed, executionReply(err)), nil
	}

	outcome := OutcomeCompleted
	if !result.Success {
		outcome = OutcomeExecutionFailed
	}
	return o.finish(ctx, req, input, call, outcome, result.Output), nil
}

// finish records the transcript (best effort) and returns the reply.
func (o *Orchestrator) finish(ctx context.Context, req Request, input string, call *llm.ToolCall, outcome Outcome, reply string) string {
	if o.store != nil {
		t := &Transcript{
			ID:        uuid.NewString(),
			CallerID:  req.Caller.ID,
			Input:     input,
			Outcome:   outcome,
			Reply:     reply,
			CreatedAt: o.now().UTC(),
		}
		if call != nil {
			t.Tool = call.Tool
			t.Args = call.Input
		}
		if err := o.store.SaveTranscript(ctx, t); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to save transcript: %v\n", err)
		}
	}
	return reply
}

func isCtxErr(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
