// Package executor runs optimized multi-action plans inside one transaction
// per command, with bounded parallelism, per-action permission gates, and
// full rollback on failure.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	conductor "github.com/goliatone/go-conductor"
	"github.com/goliatone/go-conductor/audit"
	"github.com/goliatone/go-conductor/events"
	"github.com/goliatone/go-conductor/resolver"
	"github.com/goliatone/go-conductor/storage"
	"github.com/goliatone/go-conductor/uploads"
)

// Executor coordinates the full pipeline: resolve → plan → optimize →
// execute → commit/rollback → audit. One instance owns its transaction
// registry and may serve many concurrent runs.
type Executor struct {
	store       storage.Querier
	resolver    *resolver.Resolver
	registry    *TransactionRegistry
	roles       conductor.RoleSource
	uploader    uploads.Initiator
	auditor     *audit.Recorder
	broadcaster *events.Broadcaster
	logger      Logger
	defaults    Options
}

// ExecutorOption configures an Executor at construction.
type ExecutorOption func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(l Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithBroadcaster sets the lifecycle event broadcaster.
func WithBroadcaster(b *events.Broadcaster) ExecutorOption {
	return func(e *Executor) { e.broadcaster = b }
}

// WithRoleSource sets the permission source used to resolve user roles.
func WithRoleSource(s conductor.RoleSource) ExecutorOption {
	return func(e *Executor) { e.roles = s }
}

// WithUploader sets the file-upload initiation capability.
func WithUploader(u uploads.Initiator) ExecutorOption {
	return func(e *Executor) { e.uploader = u }
}

// WithAuditRecorder overrides the default recorder.
func WithAuditRecorder(r *audit.Recorder) ExecutorOption {
	return func(e *Executor) { e.auditor = r }
}

// WithResolver overrides the default dependency resolver.
func WithResolver(r *resolver.Resolver) ExecutorOption {
	return func(e *Executor) { e.resolver = r }
}

// WithDefaultOptions replaces the executor-wide run defaults.
func WithDefaultOptions(opts ...Option) ExecutorOption {
	return func(e *Executor) { e.defaults = buildOptions(opts...) }
}

// New builds an executor over the given store.
func New(store storage.Querier, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:    store,
		resolver: resolver.New(),
		roles:    conductor.StaticRoleSource{},
		logger:   NewFmtLogger(nil),
		defaults: DefaultOptions(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.logger = normalizeLogger(e.logger)
	if e.auditor == nil {
		e.auditor = audit.NewRecorder(store)
	}
	e.registry = NewTransactionRegistry(e.logger, e.broadcaster)
	return e
}

// Registry exposes the executor's transaction registry, mainly so callers
// can start the stale sweep and tests can observe active runs.
func (e *Executor) Registry() *TransactionRegistry { return e.registry }

// Execute runs one parsed command end to end. It never returns an error:
// every failure mode is folded into the MultiActionResult so callers get a
// uniform success/failure contract.
func (e *Executor) Execute(ctx context.Context, cmd conductor.ParsedCommand, user conductor.UserContext, opts ...Option) conductor.MultiActionResult {
	started := time.Now()
	options := e.defaults
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	log := withLoggerFields(e.logger.WithContext(ctx), map[string]any{
		"command_id": cmd.ID,
		"user_id":    user.UserID,
	})

	result := conductor.MultiActionResult{CommandID: cmd.ID}

	// Planning-time failures abort before any side effect occurs.
	planFailure := func(err error) conductor.MultiActionResult {
		log.Error("command planning failed: %v", err)
		result.Error = err.Error()
		result.Summary = conductor.Summarize(nil, nil)
		result.TotalTime = time.Since(started)
		e.emit(options, events.ExecutionFailed, cmd, user, map[string]any{"error": err.Error()})
		e.recordAudit(ctx, options, cmd, user, result)
		return result
	}

	if err := cmd.Validate(); err != nil {
		return planFailure(err)
	}
	if err := user.Validate(); err != nil {
		return planFailure(err)
	}

	role, err := e.roles.RoleFor(ctx, user.UserID)
	if err != nil {
		return planFailure(fmt.Errorf("resolve role: %w", err))
	}
	caps := conductor.CapabilitiesForRole(role)

	actions := cmd.InternalActions()
	e.emit(options, events.DependencyAnalysisStart, cmd, user, map[string]any{
		"action_count": len(actions),
	})

	graph, err := e.resolver.AnalyzeDependencies(actions)
	if err != nil {
		return planFailure(err)
	}
	plan, err := e.resolver.CreateExecutionPlan(graph)
	if err != nil {
		return planFailure(err)
	}
	optimized := e.resolver.OptimizeExecutionOrder(plan)

	e.emit(options, events.ExecutionPlanReady, cmd, user, map[string]any{
		"stages":         len(optimized.Stages),
		"estimated_time": optimized.TotalEstimatedTime.String(),
		"risk":           string(optimized.Risk.Level),
		"optimizations":  len(optimized.Optimizations),
	})

	tx, err := e.registry.Begin(ctx, e.store, cmd.ID, options.TransactionTimeout)
	if err != nil {
		return planFailure(fmt.Errorf("open transaction: %w", err))
	}

	executed, failed, abortErr := e.runStages(ctx, tx, optimized, cmd, user, caps, options)

	// A timeout takes precedence over action errors it induced: once the
	// registry force-rolls-back, in-flight statements fail as a side effect.
	if tx.TimedOut() {
		abortErr = conductor.CloneError(conductor.ErrTransactionTimeout,
			"run exceeded transaction timeout", nil, map[string]any{"command_id": cmd.ID})
	}

	if abortErr == nil {
		if err := e.registry.Commit(ctx, tx); err != nil {
			abortErr = err
		}
	}

	result.ExecutedActions = executed
	result.FailedActions = failed
	result.Summary = conductor.Summarize(executed, failed)

	if abortErr != nil {
		result.Success = false
		result.Error = abortErr.Error()
		result.RollbackRequired = true
		result.RollbackCompleted = true
		if rbErr := e.registry.Rollback(ctx, tx); rbErr != nil {
			// A rollback failure never flips the run to success; it is
			// surfaced alongside the triggering error.
			result.RollbackCompleted = false
			result.Error = fmt.Sprintf("%s; rollback failed: %v", result.Error, rbErr)
			log.Error("rollback failed for command %s: %v", cmd.ID, rbErr)
		}
		e.emit(options, events.ExecutionFailed, cmd, user, map[string]any{
			"error":              abortErr.Error(),
			"executed":           len(executed),
			"failed":             len(failed),
			"rollback_completed": result.RollbackCompleted,
		})
		log.Warn("command failed after %d/%d actions: %v",
			len(executed), result.Summary.TotalActions, abortErr)
	} else {
		result.Success = true
		e.emit(options, events.ExecutionComplete, cmd, user, map[string]any{
			"executed": len(executed),
			"failed":   len(failed),
		})
		log.Info("command completed: %d actions in %s", len(executed), time.Since(started))
	}

	result.TotalTime = time.Since(started)
	e.recordAudit(ctx, options, cmd, user, result)
	return result
}

// runStages walks the plan in stage order. Stage N+1 never starts before
// stage N's actions have all settled.
func (e *Executor) runStages(
	ctx context.Context,
	tx *RunTransaction,
	plan resolver.OptimizedPlan,
	cmd conductor.ParsedCommand,
	user conductor.UserContext,
	caps conductor.CapabilitySet,
	options Options,
) (executed, failed []conductor.ActionExecutionResult, abortErr error) {
	for _, stage := range plan.Stages {
		if tx.TimedOut() {
			abortErr = conductor.CloneError(conductor.ErrTransactionTimeout,
				"run exceeded transaction timeout", nil,
				map[string]any{"command_id": cmd.ID, "stage": stage.Stage})
			return executed, failed, abortErr
		}

		e.emit(options, events.StageExecutionStart, cmd, user, map[string]any{
			"stage":    stage.Stage,
			"actions":  len(stage.Actions),
			"parallel": stage.ParallelExecution,
		})

		var stageResults []conductor.ActionExecutionResult
		if stage.ParallelExecution && options.ParallelExecutionLimit > 1 {
			stageResults = e.runParallelStage(ctx, tx, stage.Actions, user, caps, options)
		} else {
			stageResults = e.runSequentialStage(ctx, tx, stage.Actions, user, caps, options)
		}

		var firstFailure *conductor.ActionExecutionResult
		for i := range stageResults {
			if stageResults[i].Success {
				executed = append(executed, stageResults[i])
				continue
			}
			failed = append(failed, stageResults[i])
			if firstFailure == nil {
				firstFailure = &stageResults[i]
			}
		}

		e.emit(options, events.StageExecutionComplete, cmd, user, map[string]any{
			"stage":     stage.Stage,
			"succeeded": len(stageResults) - countFailed(stageResults),
			"failed":    countFailed(stageResults),
		})

		if firstFailure != nil && options.RollbackOnAnyFailure {
			abortErr = conductor.CloneError(conductor.ErrActionExecutionFailed,
				fmt.Sprintf("action %s failed: %s", firstFailure.ActionID, firstFailure.Error),
				nil, map[string]any{
					"command_id": cmd.ID,
					"action_id":  firstFailure.ActionID,
					"stage":      stage.Stage,
				})
			return executed, failed, abortErr
		}
	}
	return executed, failed, nil
}

func countFailed(results []conductor.ActionExecutionResult) int {
	n := 0
	for _, r := range results {
		if !r.Success {
			n++
		}
	}
	return n
}

// runSequentialStage executes actions one at a time, stopping early only
// when rollback-on-failure is set.
func (e *Executor) runSequentialStage(
	ctx context.Context,
	tx *RunTransaction,
	actions []conductor.Action,
	user conductor.UserContext,
	caps conductor.CapabilitySet,
	options Options,
) []conductor.ActionExecutionResult {
	results := make([]conductor.ActionExecutionResult, 0, len(actions))
	for _, action := range actions {
		if tx.TimedOut() {
			return results
		}
		r := e.executeAction(ctx, tx, action, user, caps)
		results = append(results, r)
		if !r.Success && options.RollbackOnAnyFailure {
			return results
		}
	}
	return results
}

// runParallelStage splits the stage into fixed-size chunks bounded by the
// parallel limit. Chunk K+1 starts only after chunk K fully settles; a
// failing sibling never interrupts the rest of its chunk.
func (e *Executor) runParallelStage(
	ctx context.Context,
	tx *RunTransaction,
	actions []conductor.Action,
	user conductor.UserContext,
	caps conductor.CapabilitySet,
	options Options,
) []conductor.ActionExecutionResult {
	limit := options.ParallelExecutionLimit
	results := make([]conductor.ActionExecutionResult, 0, len(actions))

	for start := 0; start < len(actions); start += limit {
		if tx.TimedOut() {
			return results
		}

		end := start + limit
		if end > len(actions) {
			end = len(actions)
		}
		chunk := actions[start:end]

		chunkResults := make([]conductor.ActionExecutionResult, len(chunk))
		var wg sync.WaitGroup
		for i, action := range chunk {
			wg.Add(1)
			go func(idx int, a conductor.Action) {
				defer wg.Done()
				chunkResults[idx] = e.executeAction(ctx, tx, a, user, caps)
			}(i, action)
		}
		wg.Wait()

		results = append(results, chunkResults...)

		if options.RollbackOnAnyFailure && countFailed(chunkResults) > 0 {
			return results
		}
	}
	return results
}

// executeAction enforces the permission gate, dispatches to the typed
// handler, and converts any error or panic into a failed result. Errors
// never escape this boundary.
func (e *Executor) executeAction(
	ctx context.Context,
	tx *RunTransaction,
	action conductor.Action,
	user conductor.UserContext,
	caps conductor.CapabilitySet,
) (result conductor.ActionExecutionResult) {
	start := time.Now()
	result = conductor.ActionExecutionResult{
		ActionID:   action.ID,
		ActionType: action.Type,
	}

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = fmt.Sprintf("handler panic: %v", r)
		}
		result.ExecutionTime = time.Since(start)
	}()

	required, err := conductor.RequiredCapability(action.Type)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if !caps.Has(required) {
		// Denied before any storage work happens.
		result.Error = conductor.CloneError(conductor.ErrInsufficientPermissions,
			fmt.Sprintf("insufficient permissions: %s requires %s", action.Type, required),
			nil, map[string]any{"action_id": action.ID, "user_id": user.UserID}).Error()
		return result
	}

	outcome, err := e.dispatchAction(ctx, tx, action, user)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.Result = outcome.result
	result.AffectedEntities = outcome.affected
	result.RollbackData = outcome.rollback
	return result
}

func (e *Executor) emit(options Options, name events.Name, cmd conductor.ParsedCommand, user conductor.UserContext, fields map[string]any) {
	if !options.ProgressTracking || e.broadcaster == nil {
		return
	}
	e.broadcaster.Emit(events.Event{
		Name:      name,
		CommandID: cmd.ID,
		UserID:    user.UserID,
		SessionID: user.SessionID,
		Fields:    fields,
	})
}

func (e *Executor) recordAudit(ctx context.Context, options Options, cmd conductor.ParsedCommand, user conductor.UserContext, result conductor.MultiActionResult) {
	if !options.AuditLogging || e.auditor == nil {
		return
	}
	entry := audit.Entry{
		CommandID:          cmd.ID,
		UserID:             user.UserID,
		OrganizationID:     user.OrganizationID,
		SessionID:          user.SessionID,
		OriginalTranscript: cmd.OriginalTranscript,
		Intent:             cmd.Intent,
		Summary:            result.Summary,
		Success:            result.Success,
		ErrorMessage:       result.Error,
	}
	if err := e.auditor.Record(ctx, entry); err != nil {
		e.logger.Warn("audit entry not persisted for command %s: %v", cmd.ID, err)
	}
}
