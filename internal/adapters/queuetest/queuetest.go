// Package queuetest holds the behavioural checks every ports.QueueStore
// backend must pass. Backend packages call Run from their own tests.
package queuetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/tillsync/internal/domain"
	"github.com/bft-labs/tillsync/internal/ports"
)

// Opener opens (or reopens) a store rooted at dir using now as its clock.
type Opener func(t *testing.T, dir string, now func() time.Time) ports.QueueStore

// Sale returns a valid regular-sale task whose note identifies it.
func Sale(note string) domain.SyncTask {
	return domain.RegularSale{Sale: domain.SalePayload{
		StoreID:  "store-1",
		Items:    []domain.CartLine{{ProductID: "p-1", Name: "Tea", Quantity: 1, UnitPrice: 250}},
		Payments: []domain.Payment{{Method: "cash", Amount: 250}},
		Notes:    note,
		Totals:   domain.Totals{Subtotal: 250, Total: 250},
	}}
}

// Resume returns a valid resume-held task.
func Resume(heldID string) domain.SyncTask {
	return domain.ResumeHeld{Resume: domain.ResumeHeldPayload{
		HeldSaleID: heldID,
		Payments:   []domain.Payment{{Method: "card", Amount: 990, Reference: "auth-" + heldID}},
	}}
}

// FixedClock returns a clock frozen at t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// Run executes the shared store checks.
func Run(t *testing.T, open Opener) {
	t.Run("enqueue assigns id and pending", func(t *testing.T) { testEnqueue(t, open) })
	t.Run("fifo with frozen clock", func(t *testing.T) { testFIFO(t, open) })
	t.Run("next pending skips failed", func(t *testing.T) { testNextPendingSkipsFailed(t, open) })
	t.Run("mark status", func(t *testing.T) { testMarkStatus(t, open) })
	t.Run("remove is idempotent", func(t *testing.T) { testRemoveIdempotent(t, open) })
	t.Run("durable across reopen", func(t *testing.T) { testDurable(t, open) })
	t.Run("syncing recovered as failed", func(t *testing.T) { testSyncingRecovered(t, open) })
	t.Run("concurrent enqueue", func(t *testing.T) { testConcurrentEnqueue(t, open) })
	t.Run("snapshot isolated from callers", func(t *testing.T) { testSnapshotIsolated(t, open) })
	t.Run("pointer task rejected", func(t *testing.T) { testPointerTaskRejected(t, open) })
}

func testEnqueue(t *testing.T, open Opener) {
	ctx := context.Background()
	store := open(t, t.TempDir(), time.Now)

	op, err := store.Enqueue(ctx, Sale("a"))
	require.NoError(t, err)
	assert.NotEmpty(t, op.ID)
	assert.Equal(t, domain.StatusPending, op.Status)
	assert.Empty(t, op.ErrorMessage)
	assert.Equal(t, domain.KindRegularSale, op.Kind())

	other, err := store.Enqueue(ctx, Resume("h1"))
	require.NoError(t, err)
	assert.NotEqual(t, op.ID, other.ID)

	got, err := store.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, Resume("h1"), got.Task)
}

func testFIFO(t *testing.T, open Opener) {
	ctx := context.Background()
	store := open(t, t.TempDir(), FixedClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)))

	var ids []string
	for i := 0; i < 5; i++ {
		op, err := store.Enqueue(ctx, Sale(fmt.Sprintf("sale-%d", i)))
		require.NoError(t, err)
		ids = append(ids, op.ID)
	}

	ops, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 5)
	for i := 1; i < len(ops); i++ {
		assert.True(t, ops[i].CreatedAt.After(ops[i-1].CreatedAt), "createdAt must be strictly increasing")
	}

	for _, want := range ids {
		next, err := store.NextPending(ctx)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, want, next.ID)
		require.NoError(t, store.Remove(ctx, next.ID))
	}

	next, err := store.NextPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func testNextPendingSkipsFailed(t *testing.T, open Opener) {
	ctx := context.Background()
	store := open(t, t.TempDir(), time.Now)

	first, err := store.Enqueue(ctx, Sale("first"))
	require.NoError(t, err)
	second, err := store.Enqueue(ctx, Sale("second"))
	require.NoError(t, err)

	require.NoError(t, store.MarkStatus(ctx, first.ID, domain.StatusFailed, "rejected"))

	next, err := store.NextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, second.ID, next.ID)
}

func testMarkStatus(t *testing.T, open Opener) {
	ctx := context.Background()
	store := open(t, t.TempDir(), time.Now)

	op, err := store.Enqueue(ctx, Sale("x"))
	require.NoError(t, err)

	require.NoError(t, store.MarkStatus(ctx, op.ID, domain.StatusFailed, "Insufficient stock"))
	got, err := store.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "Insufficient stock", got.ErrorMessage)
	assert.True(t, op.CreatedAt.Equal(got.CreatedAt), "createdAt must not change")

	require.NoError(t, store.MarkStatus(ctx, op.ID, domain.StatusPending, "ignored"))
	got, err = store.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Empty(t, got.ErrorMessage)

	err = store.MarkStatus(ctx, "missing", domain.StatusSyncing, "")
	assert.True(t, errors.Is(err, domain.ErrOperationNotFound), "got %v", err)

	_, err = store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrOperationNotFound), "got %v", err)
}

func testRemoveIdempotent(t *testing.T, open Opener) {
	ctx := context.Background()
	store := open(t, t.TempDir(), time.Now)

	op, err := store.Enqueue(ctx, Sale("x"))
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, op.ID))
	require.NoError(t, store.Remove(ctx, op.ID))
	require.NoError(t, store.Remove(ctx, "never-existed"))

	ops, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func testDurable(t *testing.T, open Opener) {
	ctx := context.Background()
	dir := t.TempDir()

	store := open(t, dir, time.Now)
	a, err := store.Enqueue(ctx, Sale("a"))
	require.NoError(t, err)
	b, err := store.Enqueue(ctx, Resume("h2"))
	require.NoError(t, err)
	require.NoError(t, store.MarkStatus(ctx, b.ID, domain.StatusFailed, "Held sale not found"))
	require.NoError(t, store.Close())

	reopened := open(t, dir, time.Now)
	ops, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)

	assert.Equal(t, a.ID, ops[0].ID)
	assert.Equal(t, domain.StatusPending, ops[0].Status)
	assert.Equal(t, Sale("a"), ops[0].Task)
	assert.True(t, a.CreatedAt.Equal(ops[0].CreatedAt))

	assert.Equal(t, b.ID, ops[1].ID)
	assert.Equal(t, domain.StatusFailed, ops[1].Status)
	assert.Equal(t, "Held sale not found", ops[1].ErrorMessage)

	c, err := reopened.Enqueue(ctx, Sale("c"))
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.After(b.CreatedAt), "createdAt must keep increasing after reopen")
}

func testSyncingRecovered(t *testing.T, open Opener) {
	ctx := context.Background()
	dir := t.TempDir()

	store := open(t, dir, time.Now)
	op, err := store.Enqueue(ctx, Sale("in-flight"))
	require.NoError(t, err)
	require.NoError(t, store.MarkStatus(ctx, op.ID, domain.StatusSyncing, ""))
	require.NoError(t, store.Close())

	reopened := open(t, dir, time.Now)
	got, err := reopened.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, domain.InterruptedMessage, got.ErrorMessage)

	next, err := reopened.NextPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func testConcurrentEnqueue(t *testing.T, open Opener) {
	ctx := context.Background()
	store := open(t, t.TempDir(), time.Now)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Enqueue(ctx, Sale(fmt.Sprintf("c-%d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	ops, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, ops, n)
	seen := make(map[string]bool, n)
	for _, op := range ops {
		assert.False(t, seen[op.ID], "duplicate id %s", op.ID)
		seen[op.ID] = true
	}
}

func testSnapshotIsolated(t *testing.T, open Opener) {
	ctx := context.Background()
	dir := t.TempDir()
	store := open(t, dir, time.Now)

	want := Sale("cart")
	cart := Sale("cart").(domain.RegularSale)
	op, err := store.Enqueue(ctx, cart)
	require.NoError(t, err)

	// The register reuses its cart for the next customer.
	cart.Sale.Items[0] = domain.CartLine{ProductID: "p-2", Quantity: 7, UnitPrice: 100}
	cart.Sale.Payments[0].Amount = 700

	next, err := store.NextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, want, next.Task)

	// Editing what the store handed out must not reach the queue either.
	handed := next.Task.(domain.RegularSale)
	handed.Sale.Items[0].Quantity = 99
	listed, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	listed[0].Task.(domain.RegularSale).Sale.Payments[0].Method = "voucher"

	got, err := store.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got.Task)

	// A later write must persist the captured snapshot.
	require.NoError(t, store.MarkStatus(ctx, op.ID, domain.StatusFailed, "rejected"))
	require.NoError(t, store.Close())

	reopened := open(t, dir, time.Now)
	got, err = reopened.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got.Task)
}

func testPointerTaskRejected(t *testing.T, open Opener) {
	ctx := context.Background()
	store := open(t, t.TempDir(), time.Now)

	_, err := store.Enqueue(ctx, (*domain.RegularSale)(nil))
	assert.ErrorIs(t, err, domain.ErrUnknownKind)

	ops, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops)
}
