package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Statement records one executed query for later inspection.
type Statement struct {
	Query string
	Args  []any
}

// Memory is an in-memory Querier used in tests. It records every statement,
// keeps transactional statements isolated until the handle commits, and can
// be told to fail statements matching a substring.
type Memory struct {
	mu        sync.Mutex
	committed []Statement
	direct    []Statement
	failOn    string
	responses map[string]Result
}

func NewMemory() *Memory {
	return &Memory{responses: map[string]Result{}}
}

// FailOn makes any statement containing the substring fail. An empty string
// clears the trigger.
func (m *Memory) FailOn(substr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn = substr
}

// Respond registers a canned result for statements containing the substring.
func (m *Memory) Respond(substr string, res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[substr] = res
}

// Committed returns statements persisted by committed transactions and by
// non-transactional queries.
func (m *Memory) Committed() []Statement {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Statement, 0, len(m.committed)+len(m.direct))
	out = append(out, m.committed...)
	out = append(out, m.direct...)
	return out
}

// CommittedMatching counts committed statements containing the substring.
func (m *Memory) CommittedMatching(substr string) int {
	n := 0
	for _, s := range m.Committed() {
		if strings.Contains(s.Query, substr) {
			n++
		}
	}
	return n
}

func (m *Memory) run(query string, args []any) (Result, error) {
	if m.failOn != "" && strings.Contains(query, m.failOn) {
		return Result{}, fmt.Errorf("memory: forced failure on %q", m.failOn)
	}
	for substr, res := range m.responses {
		if strings.Contains(query, substr) {
			return res, nil
		}
	}
	return Result{RowCount: 1}, nil
}

func (m *Memory) Query(_ context.Context, query string, args ...any) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, err := m.run(query, args)
	if err != nil {
		return Result{}, err
	}
	m.direct = append(m.direct, Statement{Query: query, Args: args})
	return res, nil
}

func (m *Memory) Begin(context.Context) (Tx, error) {
	return &memTx{store: m}, nil
}

type memTx struct {
	store   *Memory
	pending []Statement
	done    bool
}

func (t *memTx) Query(_ context.Context, query string, args ...any) (Result, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.done {
		return Result{}, fmt.Errorf("memory: query on finished transaction")
	}
	res, err := t.store.run(query, args)
	if err != nil {
		return Result{}, err
	}
	t.pending = append(t.pending, Statement{Query: query, Args: args})
	return res, nil
}

func (t *memTx) Commit(context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.done {
		return fmt.Errorf("memory: commit on finished transaction")
	}
	t.done = true
	t.store.committed = append(t.store.committed, t.pending...)
	t.pending = nil
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.done {
		return fmt.Errorf("memory: rollback on finished transaction")
	}
	t.done = true
	t.pending = nil
	return nil
}
