package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bft-labs/tillsync/internal/domain"
	"github.com/bft-labs/tillsync/internal/ports"
	"github.com/bft-labs/tillsync/pkg/log"
)

// Coordinator replays queued operations against the gateway.
//
// At most one drain cycle runs at a time. A cycle submits pending entries one
// by one in creation order, removes each on success, and stops at the first
// failure after parking that entry as failed. Gateway failures never leave
// the coordinator; storage failures are returned to the caller.
type Coordinator struct {
	store     ports.QueueStore
	gateway   ports.Gateway
	conn      ports.Connectivity
	observers []ports.SyncObserver
	logger    ports.Logger

	busy    *semaphore.Weighted
	running atomic.Bool

	// rerun is set by a request that found a cycle in progress.
	rerun atomic.Bool

	// inflight tracks asynchronous Trigger goroutines. closed is set by
	// Shutdown under mu, so no Add can follow the final Wait.
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewCoordinator creates a coordinator.
func NewCoordinator(store ports.QueueStore, gateway ports.Gateway, conn ports.Connectivity, logger ports.Logger, observers ...ports.SyncObserver) *Coordinator {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Coordinator{
		store:     store,
		gateway:   gateway,
		conn:      conn,
		observers: observers,
		logger:    logger,
		busy:      semaphore.NewWeighted(1),
	}
}

// AddObserver registers another outcome observer. Not safe to call while a
// cycle may be running; wire observers before the first trigger.
func (c *Coordinator) AddObserver(o ports.SyncObserver) {
	c.observers = append(c.observers, o)
}

// Draining reports whether a cycle is in progress.
func (c *Coordinator) Draining() bool {
	return c.running.Load()
}

// Drain runs a cycle synchronously and returns once it completes.
//
// It returns immediately with Skipped set when offline or when another cycle
// holds the guard. If requests arrived while this cycle ran and the cycle
// ended on an empty queue, it runs again so entries enqueued after the final
// empty read are not left waiting for the next trigger.
//
// The cycle ignores ctx cancellation: once started it runs until the queue
// is empty or an entry fails.
func (c *Coordinator) Drain(ctx context.Context) (domain.DrainResult, error) {
	ctx = context.WithoutCancel(ctx)

	var total domain.DrainResult
	for first := true; ; first = false {
		if !c.conn.IsOnline() {
			if first {
				total.Skipped = domain.SkipOffline
				c.finished(total)
			}
			return total, nil
		}
		if !c.busy.TryAcquire(1) {
			c.rerun.Store(true)
			if first {
				total.Skipped = domain.SkipBusy
				c.finished(total)
			}
			return total, nil
		}
		c.rerun.Store(false)
		c.running.Store(true)

		res, emptied, err := c.cycle(ctx)
		c.running.Store(false)
		c.busy.Release(1)

		total.Synced += res.Synced
		total.Failed += res.Failed
		total.FailedID = res.FailedID
		total.Duration += res.Duration
		c.finished(res)

		if err != nil {
			return total, err
		}
		if !emptied || !c.rerun.Load() {
			return total, nil
		}
		c.logger.Debug("re-running drain for requests received during cycle")
	}
}

// Trigger starts a drain in the background. Errors are logged.
// After Shutdown it does nothing.
func (c *Coordinator) Trigger(ctx context.Context, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug("drain trigger ignored after shutdown", log.String("trigger", reason))
		return
	}
	c.inflight.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.inflight.Done()
		res, err := c.Drain(ctx)
		if err != nil {
			c.logger.Error("drain stopped on storage error",
				log.String("trigger", reason),
				log.Err(err),
			)
			return
		}
		if res.Ran() {
			c.logger.Debug("drain finished",
				log.String("trigger", reason),
				log.Int("synced", res.Synced),
				log.Int("failed", res.Failed),
				log.Duration("took", res.Duration),
			)
		}
	}()
}

// Wait blocks until every Trigger goroutine has returned.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}

// Shutdown stops accepting triggers and waits for those already started.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.inflight.Wait()
}

// cycle is one pass of the drain loop. emptied is true when it ended because
// no pending entry was left.
func (c *Coordinator) cycle(ctx context.Context) (res domain.DrainResult, emptied bool, err error) {
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	for {
		op, err := c.store.NextPending(ctx)
		if err != nil {
			return res, false, err
		}
		if op == nil {
			return res, true, nil
		}

		if err := c.store.MarkStatus(ctx, op.ID, domain.StatusSyncing, ""); err != nil {
			return res, false, fmt.Errorf("mark %s syncing: %w", op.ID, err)
		}

		record, gerr := c.dispatch(ctx, *op)
		if gerr == nil {
			if err := c.store.Remove(ctx, op.ID); err != nil {
				return res, false, fmt.Errorf("remove synced %s: %w", op.ID, err)
			}
			res.Synced++
			c.logger.Info("queued operation synced",
				log.OperationID(op.ID),
				log.Kind(string(op.Kind())),
				log.String("sale_id", record.ID),
			)
			for _, o := range c.observers {
				o.SyncSucceeded(*op, record)
			}
			continue
		}

		msg := domain.FailureMessage(gerr)
		if err := c.store.MarkStatus(ctx, op.ID, domain.StatusFailed, msg); err != nil {
			return res, false, fmt.Errorf("mark %s failed: %w", op.ID, err)
		}
		res.Failed = 1
		res.FailedID = op.ID
		failed := *op
		failed.Status = domain.StatusFailed
		failed.ErrorMessage = msg
		c.logger.Warn("queued operation failed, halting drain",
			log.OperationID(op.ID),
			log.Kind(string(op.Kind())),
			log.Err(gerr),
		)
		for _, o := range c.observers {
			o.SyncFailed(failed, msg)
		}
		return res, false, nil
	}
}

// dispatch submits op's task exactly as captured.
func (c *Coordinator) dispatch(ctx context.Context, op domain.QueuedOperation) (domain.SaleRecord, error) {
	ctx = domain.ContextWithOperationID(ctx, op.ID)

	switch t := op.Task.(type) {
	case domain.RegularSale:
		return c.gateway.SubmitSale(ctx, t.Sale)
	case domain.ResumeHeld:
		return c.gateway.ResumeHeldTransaction(ctx, t.Resume.HeldSaleID, t.Resume.Payments)
	default:
		return domain.SaleRecord{}, fmt.Errorf("dispatch %T: %w", op.Task, domain.ErrUnknownKind)
	}
}

func (c *Coordinator) finished(res domain.DrainResult) {
	for _, o := range c.observers {
		o.DrainFinished(res)
	}
}
