package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/soypete/pedrobook/pkg/orchestrator"
)

// SaveTranscript implements orchestrator.TranscriptStore.
func (db *DB) SaveTranscript(ctx context.Context, t *orchestrator.Transcript) error {
	var args []byte
	if t.Args != nil {
		var err error
		args, err = json.Marshal(t.Args)
		if err != nil {
			return fmt.Errorf("failed to marshal transcript args: %w", err)
		}
	}

	query := `
		INSERT INTO transcripts (id, caller_id, input, tool, args, outcome, reply, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := db.ExecContext(ctx, query,
		t.ID,
		t.CallerID,
		t.Input,
		t.Tool,
		nullableJSON(args),
		string(t.Outcome),
		t.Reply,
		t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transcript: %w", err)
	}

	return nil
}

// ListTranscripts returns a caller's most recent transcripts, newest first.
func (db *DB) ListTranscripts(ctx context.Context, callerID, limit int) ([]orchestrator.Transcript, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, caller_id, input, tool, args, outcome, reply, created_at
		FROM transcripts
		WHERE caller_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := db.QueryContext(ctx, query, callerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()

	var transcripts []orchestrator.Transcript
	for rows.Next() {
		var t orchestrator.Transcript
		var outcome string
		var args sql.NullString

		if err := rows.Scan(&t.ID, &t.CallerID, &t.Input, &t.Tool, &args, &outcome, &t.Reply, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}

		t.Outcome = orchestrator.Outcome(outcome)
		if args.Valid && args.String != "" {
			if err := json.Unmarshal([]byte(args.String), &t.Args); err != nil {
				return nil, fmt.Errorf("failed to unmarshal transcript args: %w", err)
			}
		}

		transcripts = append(transcripts, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcripts: %w", err)
	}

	return transcripts, nil
}

// nullableJSON maps empty payloads to SQL NULL instead of an empty string,
// which JSONB would reject.
func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
