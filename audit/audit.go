// Package audit builds and persists one audit record per command execution.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	conductor "github.com/goliatone/go-conductor"
	"github.com/goliatone/go-conductor/storage"

	"github.com/google/uuid"
)

// Entry summarizes one run: inputs, outcome, and timing.
type Entry struct {
	ID                 string                     `json:"id"`
	CommandID          string                     `json:"command_id"`
	UserID             string                     `json:"user_id"`
	OrganizationID     string                     `json:"organization_id"`
	SessionID          string                     `json:"session_id"`
	Timestamp          time.Time                  `json:"timestamp"`
	OriginalTranscript string                     `json:"original_transcript,omitempty"`
	Intent             string                     `json:"intent,omitempty"`
	Summary            conductor.ExecutionSummary `json:"summary"`
	Success            bool                       `json:"success"`
	ErrorMessage       string                     `json:"error_message,omitempty"`
}

// Recorder persists entries through the opaque query interface, outside any
// run transaction so failed runs still leave a record.
type Recorder struct {
	store storage.Querier
}

// NewRecorder builds a recorder over the given store.
func NewRecorder(store storage.Querier) *Recorder {
	return &Recorder{store: store}
}

// Record inserts one audit row. The summary travels as JSON.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	summary, err := json.Marshal(entry.Summary)
	if err != nil {
		return fmt.Errorf("audit: marshal summary: %w", err)
	}

	_, err = r.store.Query(ctx,
		`INSERT INTO command_audit
		 (id, command_id, user_id, organization_id, session_id, executed_at,
		  original_transcript, intent, summary, success, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.CommandID, entry.UserID, entry.OrganizationID,
		entry.SessionID, entry.Timestamp, entry.OriginalTranscript,
		entry.Intent, string(summary), entry.Success, entry.ErrorMessage)
	if err != nil {
		return fmt.Errorf("audit: persist entry: %w", err)
	}
	return nil
}
