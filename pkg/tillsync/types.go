package tillsync

import (
	"github.com/bft-labs/tillsync/internal/app"
	"github.com/bft-labs/tillsync/internal/domain"
	"github.com/bft-labs/tillsync/internal/ports"
	"github.com/bft-labs/tillsync/pkg/log"
)

// Re-exported domain types so embedders need only this package.
type (
	Task              = domain.SyncTask
	RegularSale       = domain.RegularSale
	ResumeHeld        = domain.ResumeHeld
	SalePayload       = domain.SalePayload
	ResumeHeldPayload = domain.ResumeHeldPayload
	CartLine          = domain.CartLine
	Payment           = domain.Payment
	Totals            = domain.Totals
	Money             = domain.Money
	SaleRecord        = domain.SaleRecord
	QueuedOperation   = domain.QueuedOperation
	Status            = domain.Status
	Kind              = domain.Kind
	DrainResult       = domain.DrainResult
	GatewayError      = domain.GatewayError
	StorageError      = domain.StorageError

	// Snapshot is the queue status view.
	Snapshot = app.Snapshot

	// SubmitResult tells which path Submit took.
	SubmitResult = app.SubmitResult
)

// Re-exported statuses and kinds.
const (
	StatusPending = domain.StatusPending
	StatusSyncing = domain.StatusSyncing
	StatusFailed  = domain.StatusFailed

	KindRegularSale = domain.KindRegularSale
	KindResumeHeld  = domain.KindResumeHeld
)

// Re-exported sentinel errors, checkable with errors.Is.
var (
	ErrAlreadyRunning     = domain.ErrAlreadyRunning
	ErrNotRunning         = domain.ErrNotRunning
	ErrShutdownTimeout    = domain.ErrShutdownTimeout
	ErrInvalidConfig      = domain.ErrInvalidConfig
	ErrOperationNotFound  = domain.ErrOperationNotFound
	ErrNotFailed          = domain.ErrNotFailed
	ErrStoreLocked        = domain.ErrStoreLocked
	ErrGatewayUnreachable = domain.ErrGatewayUnreachable
	ErrInvalidPayload     = domain.ErrInvalidPayload
)

// HTTPClient is the interface for making HTTP requests.
// *http.Client satisfies this interface.
type HTTPClient = ports.HTTPClient

// Logger is the interface for structured logging.
type Logger = log.Logger

// LogField represents a structured log field.
type LogField = log.Field

// QueueStore is the durable queue contract. Inject a custom implementation
// with WithStore.
type QueueStore = ports.QueueStore

// Gateway is the remote submission contract. Inject a custom implementation
// with WithGateway.
type Gateway = ports.Gateway
