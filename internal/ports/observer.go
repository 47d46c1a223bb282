package ports

import "github.com/bft-labs/tillsync/internal/domain"

// SyncObserver is notified of coordinator outcomes. Implementations must not
// block: they run on the drain goroutine.
type SyncObserver interface {
	SyncSucceeded(op domain.QueuedOperation, record domain.SaleRecord)
	SyncFailed(op domain.QueuedOperation, message string)
	DrainFinished(result domain.DrainResult)
}
