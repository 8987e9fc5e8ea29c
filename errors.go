package conductor

import (
	stderrors "errors"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const (
	ErrCodeInvalidInput            = "INVALID_INPUT"
	ErrCodeCircularDependency      = "CIRCULAR_DEPENDENCY"
	ErrCodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	ErrCodeUnsupportedActionType   = "UNSUPPORTED_ACTION_TYPE"
	ErrCodeActionExecutionFailed   = "ACTION_EXECUTION_FAILED"
	ErrCodeTransactionTimeout      = "TRANSACTION_TIMEOUT"
	ErrCodeRollbackFailed          = "ROLLBACK_FAILED"
)

var (
	ErrInvalidInput = apperrors.New("invalid command input", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidInput)
	ErrCircularDependency = apperrors.New("circular dependency detected", apperrors.CategoryValidation).
				WithTextCode(ErrCodeCircularDependency)
	ErrInsufficientPermissions = apperrors.New("insufficient permissions", apperrors.CategoryHandler).
					WithTextCode(ErrCodeInsufficientPermissions)
	ErrUnsupportedActionType = apperrors.New("unsupported action type", apperrors.CategoryBadInput).
					WithTextCode(ErrCodeUnsupportedActionType)
	ErrActionExecutionFailed = apperrors.New("action execution failed", apperrors.CategoryHandler).
					WithTextCode(ErrCodeActionExecutionFailed)
	ErrTransactionTimeout = apperrors.New("transaction timed out", apperrors.CategoryExternal).
				WithTextCode(ErrCodeTransactionTimeout)
	ErrRollbackFailed = apperrors.New("rollback failed", apperrors.CategoryExternal).
				WithTextCode(ErrCodeRollbackFailed)
)

// CloneError derives a concrete error from one of the sentinel values above,
// overriding message, source, and metadata without mutating the sentinel.
func CloneError(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	if base == nil {
		base = ErrActionExecutionFailed
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// ErrorCode returns the go-errors text code carried by err, or "".
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// IsCircularDependency reports whether err is a planning-time cycle error.
func IsCircularDependency(err error) bool {
	return ErrorCode(err) == ErrCodeCircularDependency
}

// IsPermissionDenied reports whether err is a per-action permission failure.
func IsPermissionDenied(err error) bool {
	return ErrorCode(err) == ErrCodeInsufficientPermissions
}
