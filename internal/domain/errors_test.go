package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestFailureMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"gateway message", &GatewayError{StatusCode: 422, Message: "Insufficient stock"}, "Insufficient stock"},
		{"wrapped gateway message", fmt.Errorf("submit: %w", &GatewayError{StatusCode: 400, Message: "bad"}), "bad"},
		{"gateway without message", &GatewayError{StatusCode: 500}, DefaultFailureMessage},
		{"unreachable", fmt.Errorf("%w: connection refused", ErrGatewayUnreachable), "Network error: tillsync: gateway unreachable: connection refused"},
		{"other", errors.New("boom"), "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FailureMessage(tt.err); got != tt.want {
				t.Errorf("FailureMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewStorageError(t *testing.T) {
	if NewStorageError("write", nil) != nil {
		t.Error("nil cause should yield nil")
	}

	cause := errors.New("disk full")
	err := NewStorageError("write", cause)
	if !IsStorageError(err) {
		t.Errorf("IsStorageError(%v) = false", err)
	}
	if !errors.Is(err, cause) {
		t.Error("StorageError should unwrap to cause")
	}

	nf := NewStorageError("mark", fmt.Errorf("op x: %w", ErrOperationNotFound))
	if IsStorageError(nf) {
		t.Error("not-found should not be reported as storage error")
	}
	if !errors.Is(nf, ErrOperationNotFound) {
		t.Error("not-found should remain detectable")
	}
}
