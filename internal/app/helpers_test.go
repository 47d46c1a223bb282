package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/tillsync/internal/adapters/fs"
	"github.com/bft-labs/tillsync/internal/domain"
)

// fakeGateway records calls by sale note or held sale id and answers from
// a scripted error table.
type fakeGateway struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error

	// hook, when set, runs inside the call before it returns.
	hook func(key string)

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{fail: make(map[string]error)}
}

func (g *fakeGateway) SubmitSale(ctx context.Context, sale domain.SalePayload) (domain.SaleRecord, error) {
	return g.call(sale.Notes)
}

func (g *fakeGateway) ResumeHeldTransaction(ctx context.Context, heldSaleID string, payments []domain.Payment) (domain.SaleRecord, error) {
	return g.call(heldSaleID)
}

func (g *fakeGateway) call(key string) (domain.SaleRecord, error) {
	n := g.inflight.Add(1)
	defer g.inflight.Add(-1)
	for {
		max := g.maxInflight.Load()
		if n <= max || g.maxInflight.CompareAndSwap(max, n) {
			break
		}
	}

	g.mu.Lock()
	g.calls = append(g.calls, key)
	err := g.fail[key]
	hook := g.hook
	g.mu.Unlock()

	if hook != nil {
		hook(key)
	}
	if err != nil {
		return domain.SaleRecord{}, err
	}
	return domain.SaleRecord{ID: "sale-" + key}, nil
}

func (g *fakeGateway) setFail(key string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[key] = err
}

func (g *fakeGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

// recordingObserver captures coordinator notifications.
type recordingObserver struct {
	mu        sync.Mutex
	succeeded []string
	failed    map[string]string
	drains    []domain.DrainResult
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{failed: make(map[string]string)}
}

func (o *recordingObserver) SyncSucceeded(op domain.QueuedOperation, _ domain.SaleRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.succeeded = append(o.succeeded, op.ID)
}

func (o *recordingObserver) SyncFailed(op domain.QueuedOperation, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed[op.ID] = message
}

func (o *recordingObserver) DrainFinished(res domain.DrainResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.drains = append(o.drains, res)
}

func sale(note string) domain.SyncTask {
	return domain.RegularSale{Sale: domain.SalePayload{
		StoreID:  "store-1",
		Items:    []domain.CartLine{{ProductID: "p-1", Quantity: 1, UnitPrice: 100}},
		Payments: []domain.Payment{{Method: "cash", Amount: 100}},
		Notes:    note,
		Totals:   domain.Totals{Subtotal: 100, Total: 100},
	}}
}

func resume(heldID string) domain.SyncTask {
	return domain.ResumeHeld{Resume: domain.ResumeHeldPayload{
		HeldSaleID: heldID,
		Payments:   []domain.Payment{{Method: "card", Amount: 500}},
	}}
}

func openStore(t *testing.T) *fs.QueueFile {
	t.Helper()
	store, err := fs.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func enqueueAll(t *testing.T, store *fs.QueueFile, tasks ...domain.SyncTask) []domain.QueuedOperation {
	t.Helper()
	ops := make([]domain.QueuedOperation, 0, len(tasks))
	for _, task := range tasks {
		op, err := store.Enqueue(context.Background(), task)
		require.NoError(t, err)
		ops = append(ops, op)
	}
	return ops
}
