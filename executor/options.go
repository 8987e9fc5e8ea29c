package executor

import (
	"time"
)

// Options control one run. Defaults match the documented contract:
// 30s transaction timeout, parallel chunks of 3, rollback on any failure,
// audit and progress reporting on.
type Options struct {
	TransactionTimeout     time.Duration `yaml:"transaction_timeout"`
	ParallelExecutionLimit int           `yaml:"parallel_execution_limit"`
	RollbackOnAnyFailure   bool          `yaml:"rollback_on_any_failure"`
	AuditLogging           bool          `yaml:"audit_logging"`
	ProgressTracking       bool          `yaml:"progress_tracking"`
}

// DefaultOptions returns the per-run defaults.
func DefaultOptions() Options {
	return Options{
		TransactionTimeout:     30 * time.Second,
		ParallelExecutionLimit: 3,
		RollbackOnAnyFailure:   true,
		AuditLogging:           true,
		ProgressTracking:       true,
	}
}

// Option mutates the per-run options.
type Option func(*Options)

// WithTransactionTimeout overrides the run timeout; non-positive values are
// ignored.
func WithTransactionTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.TransactionTimeout = d
		}
	}
}

// WithParallelLimit bounds how many actions one parallel chunk dispatches.
func WithParallelLimit(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.ParallelExecutionLimit = n
		}
	}
}

// WithRollbackOnAnyFailure controls whether the first failing action aborts
// the remaining stages.
func WithRollbackOnAnyFailure(enabled bool) Option {
	return func(o *Options) {
		o.RollbackOnAnyFailure = enabled
	}
}

// WithAuditLogging toggles the per-run audit entry.
func WithAuditLogging(enabled bool) Option {
	return func(o *Options) {
		o.AuditLogging = enabled
	}
}

// WithProgressTracking toggles lifecycle event emission.
func WithProgressTracking(enabled bool) Option {
	return func(o *Options) {
		o.ProgressTracking = enabled
	}
}

func buildOptions(opts ...Option) Options {
	options := DefaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}
