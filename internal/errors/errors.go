// Package errors provides structured error types for the Stockroom engine.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryInventory ErrorCategory = "INVENTORY"
	ErrCategoryMapping   ErrorCategory = "MAPPING"
	ErrCategoryMigration ErrorCategory = "MIGRATION"
	ErrCategoryStore     ErrorCategory = "STORE"
	ErrCategorySnapshot  ErrorCategory = "SNAPSHOT"
	ErrCategoryInternal  ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Inventory codes
	CodeNoVersionsFound      = "NO_VERSIONS_FOUND"
	CodeDuplicateOrderingKey = "DUPLICATE_ORDERING_KEY"
	CodeInvalidModel         = "INVALID_MODEL"

	// Mapping codes
	CodeNotAdjacent      = "NOT_ADJACENT"
	CodeUnresolvedEntity = "UNRESOLVED_ENTITY"
	CodeInvalidMapping   = "INVALID_MAPPING"

	// Migration codes
	CodeUnknownSourceVersion = "UNKNOWN_SOURCE_VERSION"
	CodeUnknownTargetVersion = "UNKNOWN_TARGET_VERSION"
	CodeDowngradeUnsupported = "DOWNGRADE_UNSUPPORTED"
	CodeStepFailed           = "STEP_FAILED"
	CodeStoreBusy            = "STORE_BUSY"
	CodeSwapFailed           = "SWAP_FAILED"

	// Store codes
	CodeOpenFailed    = "OPEN_FAILED"
	CodeMetaMissing   = "META_MISSING"
	CodeMetaCorrupted = "META_CORRUPTED"

	// Snapshot codes
	CodeArchiveFailed = "ARCHIVE_FAILED"
	CodeRestoreFailed = "RESTORE_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// StockroomError is the structured error type used throughout the engine.
type StockroomError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *StockroomError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *StockroomError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *StockroomError) Is(target error) bool {
	var t *StockroomError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new StockroomError.
func New(category ErrorCategory, code, message string) *StockroomError {
	return &StockroomError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new StockroomError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *StockroomError {
	return &StockroomError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *StockroomError) WithDetails(details map[string]interface{}) *StockroomError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var se *StockroomError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a StockroomError.
func GetCategory(err error) ErrorCategory {
	var se *StockroomError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a StockroomError.
func GetCode(err error) string {
	var se *StockroomError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// isRetryable determines whether an error code is safe to retry. Only a
// mid-path step failure is: the original store is untouched, so rerunning
// the whole migration from it is idempotent. Everything else signals either
// a bug or unrecoverable data.
func isRetryable(category ErrorCategory, code string) bool {
	return category == ErrCategoryMigration && code == CodeStepFailed
}

// Convenience constructors for common errors.

func NewInventoryError(code, message string, cause error) *StockroomError {
	return Wrap(ErrCategoryInventory, code, message, cause)
}

func NewMappingError(code, message string) *StockroomError {
	return New(ErrCategoryMapping, code, message)
}

func NewMigrationError(code, message string, cause error) *StockroomError {
	return Wrap(ErrCategoryMigration, code, message, cause)
}

func NewStoreError(code, message string, cause error) *StockroomError {
	return Wrap(ErrCategoryStore, code, message, cause)
}

func NewSnapshotError(code, message string, cause error) *StockroomError {
	return Wrap(ErrCategorySnapshot, code, message, cause)
}

func NewInternalError(message string, cause error) *StockroomError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
