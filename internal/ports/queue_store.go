package ports

import (
	"context"

	"github.com/bft-labs/tillsync/internal/domain"
)

// QueueStore persists queued operations across restarts.
// Every mutating call is durable before it returns. Failures to read or
// write the backing medium are reported as *domain.StorageError.
type QueueStore interface {
	// Enqueue assigns a fresh id and a creation time later than every
	// existing entry, and stores the task as pending.
	Enqueue(ctx context.Context, task domain.SyncTask) (domain.QueuedOperation, error)

	// MarkStatus updates status and updatedAt. errorMessage is kept only
	// for failed; other statuses clear it. Returns domain.ErrOperationNotFound
	// when id is absent.
	MarkStatus(ctx context.Context, id string, status domain.Status, errorMessage string) error

	// Remove deletes id. Removing an absent id is a no-op.
	Remove(ctx context.Context, id string) error

	// NextPending returns the oldest pending entry, or nil when there is none.
	NextPending(ctx context.Context) (*domain.QueuedOperation, error)

	// Get returns a single entry or domain.ErrOperationNotFound.
	Get(ctx context.Context, id string) (domain.QueuedOperation, error)

	// List returns every entry in replay order.
	List(ctx context.Context) ([]domain.QueuedOperation, error)

	// Close releases the backing medium.
	Close() error
}
