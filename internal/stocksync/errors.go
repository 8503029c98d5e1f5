package stocksync

import (
	"errors"
	"fmt"
)

var (
	// ErrNoValidInput means the SKU set was empty after trimming and dedupe.
	// No session is created.
	ErrNoValidInput = errors.New("no valid SKUs to sync")

	// ErrInvalidConfig means the request parameters cannot be executed
	ErrInvalidConfig = errors.New("invalid sync configuration")

	// ErrSyncInterrupted means a full sync was re-delivered after an earlier
	// delivery had already committed part of its log
	ErrSyncInterrupted = errors.New("full sync interrupted")

	ErrSkuNotFoundLocally    = errors.New("SKU not found locally")
	ErrSkuNotFoundExternally = errors.New("SKU not found in marketplace")
)

// ReconciliationError is an unexpected failure computing or applying one SKU's update
type ReconciliationError struct {
	SKU string
	Err error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconcile %s: %v", e.SKU, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// ExternalServiceError is a stock source call that failed for a whole chunk or page
type ExternalServiceError struct {
	Op  string
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("stock source %s failed: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// UltimateFailure is a job whose retries ran out; its session is failed
type UltimateFailure struct {
	SessionID string
	Attempts  int
	Err       error
}

func (e *UltimateFailure) Error() string {
	return fmt.Sprintf("session %s failed after %d attempts: %v", e.SessionID, e.Attempts, e.Err)
}

func (e *UltimateFailure) Unwrap() error {
	return e.Err
}
