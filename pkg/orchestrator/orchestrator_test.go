package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soypete/pedrobook/pkg/identity"
	"github.com/soypete/pedrobook/pkg/llm"
	"github.com/soypete/pedrobook/pkg/tools"
)

// stubOracle returns a scripted proposal and captures the directive it saw.
type stubOracle struct {
	proposal  *llm.Proposal
	err       error
	directive string
	input     string
}

func (s *stubOracle) Propose(ctx context.Context, directive, input string) (*llm.Proposal, error) {
	s.directive = directive
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return s.proposal, nil
}

// memoryStore collects transcripts in memory.
type memoryStore struct {
	saved []*Transcript
	err   error
}

func (m *memoryStore) SaveTranscript(ctx context.Context, t *Transcript) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, t)
	return nil
}

var testCaller = identity.UserRecord{
	ID: 1, Username: "miriam", Email: "miriam@example.com", TimeZone: "America/New_York",
}

func testRequest() Request {
	return Request{Caller: testCaller}
}

func newRegistry(t *testing.T, exec tools.ExecutorFunc) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	err := r.Register(tools.Spec{
		Name:        "getAvailability",
		Description: "Query free/busy windows.",
		Parameters: &tools.Schema{
			Type: "object",
			Properties: map[string]*tools.Schema{
				"dateFrom": {Type: "string"},
				"dateTo":   {Type: "string"},
			},
		},
	}, exec)
	require.NoError(t, err)
	return r
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)
}

func TestRunExecutesProposedCall(t *testing.T) {
	var gotArgs map[string]interface{}
	reg := newRegistry(t, func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
		gotArgs = args
		return &tools.Result{Success: true, Output: "You are free Friday 2-4 PM."}, nil
	})
	oracle := &stubOracle{
		proposal: &llm.Proposal{Call: &llm.ToolCall{
			Tool:  "getAvailability",
			Input: map[string]interface{}{"dateFrom": "2026-03-06T00:00:00Z"},
		}},
	}

	o := New(oracle, reg, WithClock(fixedClock))
	reply, err := o.Run(context.Background(), "am I free friday?", testRequest())
	require.NoError(t, err)

	assert.Equal(t, "You are free Friday 2-4 PM.", reply)
	assert.Equal(t, "2026-03-06T00:00:00Z", gotArgs["dateFrom"])
	assert.Equal(t, "am I free friday?", oracle.input)
	assert.Contains(t, oracle.directive, "## getAvailability")
}

func TestRunPlainTextAnswer(t *testing.T) {
	reg := newRegistry(t, func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
		t.Fatal("no tool should run for a text answer")
		return nil, nil
	})
	oracle := &stubOracle{proposal: &llm.Proposal{Text: "Which Sam do you mean?"}}

	o := New(oracle, reg, WithClock(fixedClock))
	reply, err := o.Run(context.Background(), "book with sam", testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Which Sam do you mean?", reply)
}

// An unknown tool name yields a clarification reply, never an executor run
// and never a raw error.
func TestRunUnknownTool(t *testing.T) {
	calls := 0
	reg := newRegistry(t, func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
		calls++
		return &tools.Result{Success: true}, nil
	})
	oracle := &stubOracle{
		proposal: &llm.Proposal{Call: &llm.ToolCall{Tool: "bookFlight", Input: map[string]interface{}{}}},
	}

	o := New(oracle, reg, WithClock(fixedClock))
	reply, err := o.Run(context.Background(), "book me a flight", testRequest())
	require.NoError(t, err)

	assert.Contains(t, reply, "bookFlight")
	assert.Contains(t, reply, "rephrase")
	assert.Equal(t, 0, calls)
}

// A garbled tool-call attempt yields a clarification request; the broken
// JSON is never echoed to the human.
func TestRunMalformedToolCall(t *testing.T) {
	calls := 0
	reg := newRegistry(t, func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
		calls++
		return &tools.Result{Success: true}, nil
	})
	raw := `{"tool": "getAvail`
	oracle := &stubOracle{proposal: &llm.Proposal{Text: raw, Malformed: true}}

	o := New(oracle, reg, WithClock(fixedClock))
	reply, err := o.Run(context.Background(), "am I free?", testRequest())
	require.NoError(t, err)

	assert.Contains(t, reply, "rephrase")
	assert.NotContains(t, reply, raw)
	assert.Equal(t, 0, calls)
}

func TestRunSchemaViolation(t *testing.T) {
	calls := 0
	reg := newRegistry(t, func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
		calls++
		return &tools.Result{Success: true}, nil
	})
	oracle := &stubOracle{
		proposal: &llm.Proposal{Call: &llm.ToolCall{
			Tool:  "getAvailability",
			Input: map[string]interface{}{"dateFrom": 42},
		}},
	}

	o := New(oracle, reg, WithClock(fixedClock))
	reply, err := o.Run(context.Background(), "am I free?", testRequest())
	require.NoError(t, err)

	assert.Contains(t, reply, "couldn't complete")
	assert.Equal(t, 0, calls, "invalid args must not reach the executor")
}

func TestRunExecutorError(t *testing.T) {
	reg := newRegistry(t, func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
		return nil, fmt.Errorf("provider exploded")
	})
	oracle := &stubOracle{
		proposal: &llm.Proposal{Call: &llm.ToolCall{Tool: "getAvailability", Input: map[string]interface{}{}}},
	}

	o := New(oracle, reg, WithClock(fixedClock))
	reply, err := o.Run(context.Background(), "am I free?", testRequest())
	require.NoError(t, err, "downstream failures fold into the reply")
	assert.Contains(t, reply, "Nothing was changed")
}

func TestRunOracleUnavailable(t *testing.T) {
	reg := newRegistry(t, func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
		return &tools.Result{Success: true}, nil
	})
	oracle := &stubOracle{err: fmt.Errorf("connection refused")}

	o := New(oracle, reg, WithClock(fixedClock))
	reply, err := o.Run(context.Background(), "am I free?", testRequest())
	require.NoError(t, err)
	assert.Contains(t, reply, "try again")
}

// The caller's own deadline is the one failure that surfaces as an error
// instead of a reply.
func TestRunDeadlineSurfacesAsError(t *testing.T) {
	reg := newRegistry(t, func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
		return &tools.Result{Success: true}, nil
	})
	oracle := &stubOracle{err: context.DeadlineExceeded}

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	o := New(oracle, reg, WithClock(fixedClock))
	_, err := o.Run(ctx, "am I free?", testRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRunRecordsTranscript(t *testing.T) {
	reg := newRegistry(t, func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
		return &tools.Result{Success: true, Output: "done"}, nil
	})
	oracle := &stubOracle{
		proposal: &llm.Proposal{Call: &llm.ToolCall{
			Tool:  "getAvailability",
			Input: map[string]interface{}{"dateFrom": "2026-03-06T00:00:00Z"},
		}},
	}
	store := &memoryStore{}

	o := New(oracle, reg, WithClock(fixedClock), WithTranscriptStore(store))
	_, err := o.Run(context.Background(), "am I free friday?", testRequest())
	require.NoError(t, err)

	require.Len(t, store.saved, 1)
	tr := store.saved[0]
	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, 1, tr.CallerID)
	assert.Equal(t, "am I free friday?", tr.Input)
	assert.Equal(t, "getAvailability", tr.Tool)
	assert.Equal(t, OutcomeCompleted, tr.Outcome)
	assert.Equal(t, "done", tr.Reply)
}

// A failing store must not fail the invocation.
func TestRunStoreFailureIsBestEffort(t *testing.T) {
	reg := newRegistry(t, func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
		return &tools.Result{Success: true, Output: "done"}, nil
	})
	oracle := &stubOracle{
		proposal: &llm.Proposal{Call: &llm.ToolCall{Tool: "getAvailability", Input: map[string]interface{}{}}},
	}
	store := &memoryStore{err: fmt.Errorf("db down")}

	o := New(oracle, reg, WithClock(fixedClock), WithTranscriptStore(store))
	reply, err := o.Run(context.Background(), "am I free?", testRequest())
	require.NoError(t, err)
	assert.Equal(t, "done", reply)
}

func TestRunDirectiveRedactsReferences(t *testing.T) {
	reg := newRegistry(t, func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
		return &tools.Result{Success: true}, nil
	})
	oracle := &stubOracle{proposal: &llm.Proposal{Text: "ok"}}

	req := Request{
		Caller: testCaller,
		References: []identity.Reference{
			{ID: 2, Username: "onboarding", Email: "onboarding@example.com", Type: identity.RefFromUsername},
		},
	}

	o := New(oracle, reg, WithClock(fixedClock))
	_, err := o.Run(context.Background(), "book with @onboarding", req)
	require.NoError(t, err)

	assert.Contains(t, oracle.directive, "username: onboarding")
	assert.NotContains(t, oracle.directive, "onboarding@example.com")
}
