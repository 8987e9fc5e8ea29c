package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	conductor "github.com/goliatone/go-conductor"
	"github.com/goliatone/go-conductor/events"
	"github.com/goliatone/go-conductor/storage"

	rcron "github.com/robfig/cron/v3"
)

// staleTransactionAge is the hard ceiling for any registered transaction,
// independent of each run's own timeout.
const staleTransactionAge = time.Minute

// RunTransaction tracks one in-flight run's transaction. A run holds at
// most one; the registry removes it on commit, rollback, or timeout.
type RunTransaction struct {
	mu        sync.Mutex
	tx        storage.Tx
	commandID string
	startTime time.Time
	timer     *time.Timer
	active    bool
	timedOut  bool
}

// CommandID identifies the run owning this transaction.
func (t *RunTransaction) CommandID() string { return t.commandID }

// TimedOut reports whether the run's timeout or the stale sweep already
// forced a rollback.
func (t *RunTransaction) TimedOut() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timedOut
}

// Active reports whether the transaction is still open.
func (t *RunTransaction) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Query runs one statement inside the transaction, rejecting use after the
// transaction has settled.
func (t *RunTransaction) Query(ctx context.Context, query string, args ...any) (storage.Result, error) {
	t.mu.Lock()
	if !t.active {
		timedOut := t.timedOut
		t.mu.Unlock()
		if timedOut {
			return storage.Result{}, conductor.CloneError(conductor.ErrTransactionTimeout,
				"transaction already rolled back by timeout", nil,
				map[string]any{"command_id": t.commandID})
		}
		return storage.Result{}, fmt.Errorf("executor: query on settled transaction")
	}
	tx := t.tx
	t.mu.Unlock()

	return tx.Query(ctx, query, args...)
}

// TransactionRegistry owns every in-flight run transaction for one executor
// instance. It is not a process-wide singleton: each executor constructs its
// own, which keeps runs observable and testable in isolation.
type TransactionRegistry struct {
	mu      sync.Mutex
	entries map[string]*RunTransaction

	logger      Logger
	broadcaster *events.Broadcaster
	sweeper     *rcron.Cron
}

// NewTransactionRegistry builds an empty registry. broadcaster may be nil.
func NewTransactionRegistry(logger Logger, broadcaster *events.Broadcaster) *TransactionRegistry {
	return &TransactionRegistry{
		entries:     make(map[string]*RunTransaction),
		logger:      normalizeLogger(logger),
		broadcaster: broadcaster,
	}
}

// Begin opens a transaction for commandID and arms its timeout. The timeout
// does not interrupt in-flight handlers; it forces the transaction outcome
// to rollback and emits a transaction_timeout event.
//
// The registry entry is reserved before q.Begin runs so two concurrent calls
// for one command id cannot both open a transaction: the loser fails the
// reservation, and a reservation whose q.Begin errors is released.
func (r *TransactionRegistry) Begin(ctx context.Context, q storage.Querier, commandID string, timeout time.Duration) (*RunTransaction, error) {
	entry := &RunTransaction{
		commandID: commandID,
		startTime: time.Now().UTC(),
	}

	r.mu.Lock()
	if _, exists := r.entries[commandID]; exists {
		r.mu.Unlock()
		return nil, conductor.CloneError(conductor.ErrInvalidInput,
			"command already has an open transaction", nil,
			map[string]any{"command_id": commandID})
	}
	r.entries[commandID] = entry
	r.mu.Unlock()

	tx, err := q.Begin(ctx)
	if err != nil {
		r.remove(commandID)
		return nil, err
	}

	entry.mu.Lock()
	entry.tx = tx
	entry.active = true
	if timeout > 0 {
		entry.timer = time.AfterFunc(timeout, func() {
			r.forceRollback(entry, "transaction timeout exceeded")
		})
	}
	entry.mu.Unlock()

	return entry, nil
}

// Commit settles the transaction, failing if a timeout already forced a
// rollback.
func (r *TransactionRegistry) Commit(ctx context.Context, entry *RunTransaction) error {
	entry.mu.Lock()
	if !entry.active {
		timedOut := entry.timedOut
		entry.mu.Unlock()
		if timedOut {
			return conductor.CloneError(conductor.ErrTransactionTimeout,
				"cannot commit: transaction rolled back by timeout", nil,
				map[string]any{"command_id": entry.commandID})
		}
		return fmt.Errorf("executor: commit on settled transaction")
	}
	entry.active = false
	entry.stopTimerLocked()
	tx := entry.tx
	entry.mu.Unlock()

	r.remove(entry.commandID)
	return tx.Commit(ctx)
}

// Rollback settles the transaction. Rolling back a transaction the timeout
// already rolled back is a no-op success: the outcome the caller wanted
// already holds.
func (r *TransactionRegistry) Rollback(ctx context.Context, entry *RunTransaction) error {
	entry.mu.Lock()
	if !entry.active {
		entry.mu.Unlock()
		r.remove(entry.commandID)
		return nil
	}
	entry.active = false
	entry.stopTimerLocked()
	tx := entry.tx
	entry.mu.Unlock()

	r.remove(entry.commandID)
	return tx.Rollback(ctx)
}

func (t *RunTransaction) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (r *TransactionRegistry) forceRollback(entry *RunTransaction, reason string) {
	entry.mu.Lock()
	if !entry.active {
		entry.mu.Unlock()
		return
	}
	entry.active = false
	entry.timedOut = true
	entry.stopTimerLocked()
	tx := entry.tx
	entry.mu.Unlock()

	if err := tx.Rollback(context.Background()); err != nil {
		r.logger.Error("forced rollback failed for command %s: %v", entry.commandID, err)
	}
	r.remove(entry.commandID)

	r.logger.Warn("forced rollback for command %s: %s", entry.commandID, reason)
	if r.broadcaster != nil {
		r.broadcaster.Emit(events.Event{
			Name:      events.TransactionTimeout,
			CommandID: entry.commandID,
			Fields:    map[string]any{"reason": reason},
		})
	}
}

func (r *TransactionRegistry) remove(commandID string) {
	r.mu.Lock()
	delete(r.entries, commandID)
	r.mu.Unlock()
}

// ActiveCount returns the number of registered in-flight transactions.
func (r *TransactionRegistry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// SweepStale force-rolls-back every registered transaction older than the
// hard ceiling. The sweep is a leak guard, not the primary timeout.
func (r *TransactionRegistry) SweepStale() int {
	cutoff := time.Now().UTC().Add(-staleTransactionAge)

	r.mu.Lock()
	stale := make([]*RunTransaction, 0)
	for _, entry := range r.entries {
		if entry.startTime.Before(cutoff) {
			stale = append(stale, entry)
		}
	}
	r.mu.Unlock()

	for _, entry := range stale {
		r.forceRollback(entry, "stale transaction sweep")
	}
	return len(stale)
}

// StartSweep schedules SweepStale at the fixed interval. Call StopSweep to
// shut the scheduler down.
func (r *TransactionRegistry) StartSweep(interval time.Duration) error {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if r.sweeper != nil {
		return fmt.Errorf("executor: sweep already started")
	}

	c := rcron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if n := r.SweepStale(); n > 0 {
			r.logger.Warn("stale transaction sweep rolled back %d runs", n)
		}
	}); err != nil {
		return fmt.Errorf("executor: schedule sweep: %w", err)
	}
	c.Start()
	r.sweeper = c
	return nil
}

// StopSweep stops the background sweep if it is running.
func (r *TransactionRegistry) StopSweep() {
	if r.sweeper != nil {
		r.sweeper.Stop()
		r.sweeper = nil
	}
}
