package asset

import "fmt"

// NotFoundError means an asset, actor, or target identity does not exist.
// It is a stable failure: retrying will not help.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError means the request itself is malformed or targets an asset
// in a state that can never accept the operation (for example a retired
// asset).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError means a mutating operation could not complete because the
// asset is mid-transition under a concurrent operation. It is retryable and
// carries the asset's current detail view so callers can show fresh state.
type ConflictError struct {
	AssetID int64
	Asset   *View
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("processing of asset %d not completed: someone else is currently handling it", e.AssetID)
}

// PersistenceError wraps a store-level failure. Fatal to the request.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: persistence failure: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
