package tillsync

import (
	"time"

	"github.com/bft-labs/tillsync/internal/app"
	"github.com/bft-labs/tillsync/internal/domain"
	"github.com/bft-labs/tillsync/internal/ports"
)

// EventHandler receives notifications about queue activity.
//
// Sync events are called from the drain goroutine and connectivity events
// from the monitor's timer; implementations should return quickly.
type EventHandler interface {
	// OnStateChange is called on every lifecycle transition.
	OnStateChange(event StateChangeEvent)

	// OnSyncSuccess is called after a queued operation was accepted and removed.
	OnSyncSuccess(event SyncSuccessEvent)

	// OnSyncFailure is called after a queued operation was parked as failed.
	OnSyncFailure(event SyncFailureEvent)

	// OnConnectivityChange is called on debounced online/offline transitions.
	OnConnectivityChange(event ConnectivityEvent)

	// OnFailedReminder is called periodically while failed entries wait for
	// an operator. Emitted by the reminder plugin.
	OnFailedReminder(event FailedReminderEvent)
}

// StateChangeEvent describes a lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// SyncSuccessEvent describes a replayed operation.
type SyncSuccessEvent struct {
	OperationID string
	Kind        Kind
	Record      SaleRecord

	// Queued is how long the operation waited since it was enqueued.
	Queued time.Duration
}

// SyncFailureEvent describes an operation parked as failed.
type SyncFailureEvent struct {
	OperationID string
	Kind        Kind
	Message     string
}

// ConnectivityEvent describes a connectivity transition.
type ConnectivityEvent struct {
	Online bool
}

// FailedReminderEvent reports failed entries awaiting retry or discard.
type FailedReminderEvent struct {
	Failed int

	// Oldest is the creation time of the oldest failed entry.
	Oldest time.Time
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to
// override only the events you care about.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent)         {}
func (BaseEventHandler) OnSyncSuccess(SyncSuccessEvent)         {}
func (BaseEventHandler) OnSyncFailure(SyncFailureEvent)         {}
func (BaseEventHandler) OnConnectivityChange(ConnectivityEvent) {}
func (BaseEventHandler) OnFailedReminder(FailedReminderEvent)   {}

var _ EventHandler = BaseEventHandler{}

// eventEmitterWrapper adapts EventHandler to the internal emitter and
// observer interfaces.
type eventEmitterWrapper struct {
	handler EventHandler
	now     func() time.Time
}

var (
	_ app.EventEmitter   = (*eventEmitterWrapper)(nil)
	_ ports.SyncObserver = (*eventEmitterWrapper)(nil)
)

func (e *eventEmitterWrapper) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) SyncSucceeded(op domain.QueuedOperation, record domain.SaleRecord) {
	if e.handler == nil {
		return
	}
	e.handler.OnSyncSuccess(SyncSuccessEvent{
		OperationID: op.ID,
		Kind:        op.Kind(),
		Record:      record,
		Queued:      e.now().Sub(op.CreatedAt),
	})
}

func (e *eventEmitterWrapper) SyncFailed(op domain.QueuedOperation, message string) {
	if e.handler == nil {
		return
	}
	e.handler.OnSyncFailure(SyncFailureEvent{
		OperationID: op.ID,
		Kind:        op.Kind(),
		Message:     message,
	})
}

func (e *eventEmitterWrapper) DrainFinished(domain.DrainResult) {}

func (e *eventEmitterWrapper) connectivityChanged(online bool) {
	if e.handler == nil {
		return
	}
	e.handler.OnConnectivityChange(ConnectivityEvent{Online: online})
}

func (e *eventEmitterWrapper) OnFailedReminder(event FailedReminderEvent) {
	if e.handler == nil {
		return
	}
	e.handler.OnFailedReminder(event)
}
