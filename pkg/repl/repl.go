// Package repl is an interactive loop over the orchestrator: one message per
// line, one reply per message. Clarification retries happen across lines,
// matching the one-call-per-invocation contract of the core.
package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/soypete/pedrobook/pkg/orchestrator"
)

// REPL represents the interactive scheduling assistant loop.
type REPL struct {
	orch    *orchestrator.Orchestrator
	request orchestrator.Request
	timeout time.Duration
	rl      *readline.Instance
}

// New creates a new REPL bound to one caller's request context.
func New(orch *orchestrator.Orchestrator, request orchestrator.Request, timeout time.Duration) (*REPL, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pedrobook> ",
		HistoryFile:     historyFilePath(),
		HistoryLimit:    1000,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	return &REPL{
		orch:    orch,
		request: request,
		timeout: timeout,
		rl:      rl,
	}, nil
}

// Run starts the loop. Ctrl+D exits; Ctrl+C clears the current line.
func (r *REPL) Run(ctx context.Context) error {
	defer r.Close()

	fmt.Printf("pedrobook scheduling assistant (caller: %s). Ctrl+D to exit.\n", r.request.Caller.Username)

	for {
		line, err := r.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		runCtx, cancel := context.WithTimeout(ctx, r.timeout)
		reply, err := r.orch.Run(runCtx, line, r.request)
		cancel()
		if err != nil {
			// Only deadline/cancellation reaches here; everything else is
			// folded into the reply.
			fmt.Printf("(timed out: %v)\n", err)
			continue
		}

		fmt.Println(reply)
	}
}

// Close closes the readline instance.
func (r *REPL) Close() error {
	return r.rl.Close()
}

func historyFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/pedrobook_history"
	}
	return filepath.Join(homeDir, ".pedrobook_history")
}
