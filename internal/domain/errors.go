package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent error conditions in the tillsync domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("tillsync: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("tillsync: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("tillsync: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("tillsync: invalid configuration")

	// ErrOperationNotFound is returned when a queue entry id is not in the store.
	ErrOperationNotFound = errors.New("tillsync: operation not found")

	// ErrNotFailed is returned when an operator action that requires a failed
	// entry is applied to a pending or syncing one.
	ErrNotFailed = errors.New("tillsync: operation is not failed")

	// ErrStoreLocked is returned when another process holds the queue store.
	ErrStoreLocked = errors.New("tillsync: queue store is locked by another process")

	// ErrGatewayUnreachable marks failures where the request never reached
	// the remote service.
	ErrGatewayUnreachable = errors.New("tillsync: gateway unreachable")

	// ErrUnknownKind is returned when a persisted record carries a kind
	// this build does not know how to replay.
	ErrUnknownKind = errors.New("tillsync: unknown operation kind")

	// ErrInvalidPayload is returned when a task snapshot is not self-contained.
	ErrInvalidPayload = errors.New("tillsync: invalid payload")
)

// StorageError reports that the durable queue could not be read or written.
// It is the only failure class the coordinator propagates to its caller:
// losing it means losing the durability guarantee.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("tillsync: queue storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err as a StorageError for operation op.
// Returns nil when err is nil. Sentinel lookups (ErrOperationNotFound) pass through unwrapped.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOperationNotFound) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err is, or wraps, a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// GatewayError is a rejection returned by the remote service: the request was
// delivered and refused (validation, insufficient stock, ...).
type GatewayError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *GatewayError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// DefaultFailureMessage is recorded when no message can be extracted from a failure.
const DefaultFailureMessage = "Failed to sync transaction"

// FailureMessage extracts a human-readable message from a gateway failure.
// Rejections carry the server's message; unreachable errors are labelled as
// network failures; anything else falls back to DefaultFailureMessage.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		if ge.Message != "" {
			return ge.Message
		}
		return DefaultFailureMessage
	}
	if errors.Is(err, ErrGatewayUnreachable) {
		return "Network error: " + err.Error()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return DefaultFailureMessage
}
