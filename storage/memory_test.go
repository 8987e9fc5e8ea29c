package storage

import (
	"context"
	"testing"
)

func TestMemoryTransactionIsolation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	tx, err := m.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.Query(ctx, "INSERT INTO tasks (id) VALUES ($1)", "t1"); err != nil {
		t.Fatalf("query: %v", err)
	}

	// Pending statements are invisible until commit.
	if n := m.CommittedMatching("INSERT INTO tasks"); n != 0 {
		t.Fatalf("uncommitted statement visible: %d", n)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if n := m.CommittedMatching("INSERT INTO tasks"); n != 1 {
		t.Fatalf("committed statement missing: %d", n)
	}
}

func TestMemoryRollbackDiscardsPending(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	tx, _ := m.Begin(ctx)
	if _, err := tx.Query(ctx, "INSERT INTO channels (id) VALUES ($1)", "c1"); err != nil {
		t.Fatalf("query: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if len(m.Committed()) != 0 {
		t.Fatal("rolled-back statements must not persist")
	}
	if _, err := tx.Query(ctx, "SELECT 1"); err == nil {
		t.Fatal("query on finished transaction must fail")
	}
	if err := tx.Commit(ctx); err == nil {
		t.Fatal("commit on finished transaction must fail")
	}
}

func TestMemoryFailOn(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.FailOn("INSERT INTO tasks")
	if _, err := m.Query(ctx, "INSERT INTO tasks (id) VALUES ($1)", "t1"); err == nil {
		t.Fatal("expected forced failure")
	}
	if _, err := m.Query(ctx, "INSERT INTO channels (id) VALUES ($1)", "c1"); err != nil {
		t.Fatalf("unrelated statement failed: %v", err)
	}

	m.FailOn("")
	if _, err := m.Query(ctx, "INSERT INTO tasks (id) VALUES ($1)", "t2"); err != nil {
		t.Fatalf("cleared trigger still failing: %v", err)
	}
}

func TestMemoryCannedResponses(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Respond("SELECT assignee_id", Result{
		Rows:     []map[string]any{{"assignee_id": "u1"}},
		RowCount: 1,
	})

	res, err := m.Query(ctx, "SELECT assignee_id FROM task_assignments WHERE task_id = $1", "t1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0]["assignee_id"] != "u1" {
		t.Fatalf("canned response not returned: %+v", res)
	}
}

func TestTransactionHelper(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := Transaction(ctx, m, func(tx Tx) error {
		_, err := tx.Query(ctx, "INSERT INTO tasks (id) VALUES ($1)", "t1")
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if m.CommittedMatching("INSERT INTO tasks") != 1 {
		t.Fatal("helper must commit on success")
	}

	m.FailOn("INSERT INTO channels")
	err = Transaction(ctx, m, func(tx Tx) error {
		_, err := tx.Query(ctx, "INSERT INTO channels (id) VALUES ($1)", "c1")
		return err
	})
	if err == nil {
		t.Fatal("helper must surface the inner error")
	}
	if m.CommittedMatching("INSERT INTO channels") != 0 {
		t.Fatal("helper must roll back on failure")
	}
}
