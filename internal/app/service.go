package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/bft-labs/tillsync/internal/domain"
	"github.com/bft-labs/tillsync/internal/ports"
	"github.com/bft-labs/tillsync/pkg/log"
)

// Snapshot is the operator status view.
type Snapshot struct {
	domain.Stats
	Online        bool `json:"online"`
	ForcedOffline bool `json:"forced_offline"`
	Draining      bool `json:"draining"`
}

// SubmitResult tells the caller which path a submission took. Exactly one
// field is set.
type SubmitResult struct {
	// Record is set when the gateway accepted the sale immediately.
	Record *domain.SaleRecord `json:"record,omitempty"`

	// Queued is set when the task was stored for later replay.
	Queued *domain.QueuedOperation `json:"queued,omitempty"`
}

// Service is the queue API shared by the embedding package and the operator
// HTTP surface. It owns the enqueue entry point; the coordinator owns the
// drain.
type Service struct {
	store   ports.QueueStore
	gateway ports.Gateway
	monitor *Monitor
	coord   *Coordinator
	logger  ports.Logger
}

// NewService wires a service over its collaborators.
func NewService(store ports.QueueStore, gateway ports.Gateway, monitor *Monitor, coord *Coordinator, logger ports.Logger) *Service {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Service{store: store, gateway: gateway, monitor: monitor, coord: coord, logger: logger}
}

// Enqueue validates and stores task, then triggers a drain when online.
func (s *Service) Enqueue(ctx context.Context, task domain.SyncTask) (domain.QueuedOperation, error) {
	if err := domain.ValidateTask(task); err != nil {
		return domain.QueuedOperation{}, err
	}

	op, err := s.store.Enqueue(ctx, task)
	if err != nil {
		return domain.QueuedOperation{}, err
	}
	s.logger.Info("operation queued",
		log.OperationID(op.ID),
		log.Kind(string(op.Kind())),
	)

	if s.monitor.IsOnline() {
		s.coord.Trigger(ctx, "enqueue")
	}
	return op, nil
}

// Submit sends a regular sale straight to the gateway when that cannot
// overtake queued work, and queues it otherwise.
//
//   - resume-held tasks are always queued
//   - offline, or pending/syncing entries exist: queued
//   - gateway unreachable: queued
//   - gateway rejection: returned to the caller, nothing is stored
func (s *Service) Submit(ctx context.Context, task domain.SyncTask) (SubmitResult, error) {
	if err := domain.ValidateTask(task); err != nil {
		return SubmitResult{}, err
	}

	var sale domain.SalePayload
	switch t := task.(type) {
	case domain.RegularSale:
		sale = t.Sale
	default:
		return s.queue(ctx, task)
	}

	if !s.monitor.IsOnline() {
		return s.queue(ctx, task)
	}
	ahead, err := s.hasOutstanding(ctx)
	if err != nil {
		return SubmitResult{}, err
	}
	if ahead {
		return s.queue(ctx, task)
	}

	record, err := s.gateway.SubmitSale(ctx, sale)
	switch {
	case err == nil:
		return SubmitResult{Record: &record}, nil
	case errors.Is(err, domain.ErrGatewayUnreachable):
		s.logger.Warn("gateway unreachable, queueing sale", log.Err(err))
		return s.queue(ctx, task)
	default:
		return SubmitResult{}, err
	}
}

func (s *Service) queue(ctx context.Context, task domain.SyncTask) (SubmitResult, error) {
	op, err := s.Enqueue(ctx, task)
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{Queued: &op}, nil
}

func (s *Service) hasOutstanding(ctx context.Context) (bool, error) {
	if s.coord.Draining() {
		return true, nil
	}
	ops, err := s.store.List(ctx)
	if err != nil {
		return false, err
	}
	st := domain.Tally(ops)
	return st.Pending+st.Syncing > 0, nil
}

// Retry runs a drain cycle now and waits for it.
func (s *Service) Retry(ctx context.Context) (domain.DrainResult, error) {
	return s.coord.Drain(ctx)
}

// RetryOperation returns a failed entry to pending, keeping its place in
// creation order, and triggers a drain.
func (s *Service) RetryOperation(ctx context.Context, id string) (domain.QueuedOperation, error) {
	op, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.QueuedOperation{}, err
	}
	if op.Status != domain.StatusFailed {
		return domain.QueuedOperation{}, fmt.Errorf("retry %s (%s): %w", id, op.Status, domain.ErrNotFailed)
	}
	if err := s.store.MarkStatus(ctx, id, domain.StatusPending, ""); err != nil {
		return domain.QueuedOperation{}, err
	}
	s.logger.Info("failed operation reset to pending", log.OperationID(id))

	if s.monitor.IsOnline() {
		s.coord.Trigger(ctx, "retry")
	}
	return s.store.Get(ctx, id)
}

// Discard removes a failed entry. Pending and syncing entries are refused so
// an operator cannot drop a sale that has not been attempted.
func (s *Service) Discard(ctx context.Context, id string) error {
	op, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if op.Status != domain.StatusFailed {
		return fmt.Errorf("discard %s (%s): %w", id, op.Status, domain.ErrNotFailed)
	}
	if err := s.store.Remove(ctx, id); err != nil {
		return err
	}
	s.logger.Warn("failed operation discarded",
		log.OperationID(id),
		log.Kind(string(op.Kind())),
		log.String("error_message", op.ErrorMessage),
	)
	return nil
}

// Snapshot returns counts and connectivity for the status view.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	ops, err := s.store.List(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Stats:         domain.Tally(ops),
		Online:        s.monitor.IsOnline(),
		ForcedOffline: s.monitor.ForcedOffline(),
		Draining:      s.coord.Draining(),
	}, nil
}

// List returns every entry in replay order.
func (s *Service) List(ctx context.Context) ([]domain.QueuedOperation, error) {
	return s.store.List(ctx)
}

// Get returns one entry.
func (s *Service) Get(ctx context.Context, id string) (domain.QueuedOperation, error) {
	return s.store.Get(ctx, id)
}
