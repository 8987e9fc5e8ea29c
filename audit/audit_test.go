package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	conductor "github.com/goliatone/go-conductor"
	"github.com/goliatone/go-conductor/storage"
)

func TestRecordFillsDefaults(t *testing.T) {
	store := storage.NewMemory()
	rec := NewRecorder(store)

	err := rec.Record(context.Background(), Entry{
		CommandID: "cmd-1",
		UserID:    "u1",
		Success:   true,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	committed := store.Committed()
	if len(committed) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(committed))
	}
	stmt := committed[0]
	if id, _ := stmt.Args[0].(string); id == "" {
		t.Fatal("entry id must be generated")
	}
	if ts, ok := stmt.Args[5].(time.Time); !ok || ts.IsZero() {
		t.Fatal("timestamp must be filled")
	}
}

func TestRecordSerializesSummary(t *testing.T) {
	store := storage.NewMemory()
	rec := NewRecorder(store)

	summary := conductor.Summarize([]conductor.ActionExecutionResult{
		{ActionID: "a", ActionType: conductor.ActionCreateTask, Success: true,
			ExecutionTime: 50 * time.Millisecond, AffectedEntities: []string{"t1"}},
	}, nil)

	err := rec.Record(context.Background(), Entry{
		ID:        "audit-1",
		CommandID: "cmd-1",
		Summary:   summary,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	stmt := store.Committed()[0]
	raw, _ := stmt.Args[8].(string)
	var decoded conductor.ExecutionSummary
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("summary column is not valid JSON: %v", err)
	}
	if decoded.TotalActions != 1 || decoded.SucceededActions != 1 {
		t.Fatalf("summary round trip lost data: %+v", decoded)
	}
}

func TestRecordSurfacesStoreErrors(t *testing.T) {
	store := storage.NewMemory()
	store.FailOn("command_audit")
	rec := NewRecorder(store)

	if err := rec.Record(context.Background(), Entry{CommandID: "cmd-1"}); err == nil {
		t.Fatal("store failure must surface")
	}
}
