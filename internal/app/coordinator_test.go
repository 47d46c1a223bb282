package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/tillsync/internal/domain"
	"github.com/bft-labs/tillsync/internal/ports"
)

func TestCoordinator_SyncsSingleSale(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	gw := newFakeGateway()
	obs := newRecordingObserver()
	enqueueAll(t, store, sale("A"))

	c := NewCoordinator(store, gw, NewMonitor(true, 0, nil), nil, obs)
	res, err := c.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 0, res.Failed)
	assert.True(t, res.Ran())
	assert.Equal(t, []string{"A"}, gw.Calls())

	ops, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops)
	assert.Len(t, obs.succeeded, 1)
}

func TestCoordinator_RejectionParksEntryAndHalts(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	gw := newFakeGateway()
	gw.setFail("A", &domain.GatewayError{StatusCode: 422, Message: "insufficient stock"})
	obs := newRecordingObserver()
	ops := enqueueAll(t, store, sale("A"), sale("B"))

	c := NewCoordinator(store, gw, NewMonitor(true, 0, nil), nil, obs)
	res, err := c.Drain(ctx)
	require.NoError(t, err, "gateway failures must not propagate")

	assert.Equal(t, 0, res.Synced)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, ops[0].ID, res.FailedID)
	assert.Equal(t, []string{"A"}, gw.Calls(), "drain must halt after the first failure")

	a, err := store.Get(ctx, ops[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, a.Status)
	assert.Equal(t, "insufficient stock", a.ErrorMessage)

	b, err := store.Get(ctx, ops[1].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, b.Status)

	assert.Equal(t, "insufficient stock", obs.failed[ops[0].ID])
}

func TestCoordinator_FailedEntryDoesNotBlockLaterOnes(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	gw := newFakeGateway()
	ops := enqueueAll(t, store, sale("A"), sale("B"))
	require.NoError(t, store.MarkStatus(ctx, ops[0].ID, domain.StatusFailed, "insufficient stock"))

	c := NewCoordinator(store, gw, NewMonitor(true, 0, nil), nil)
	res, err := c.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, []string{"B"}, gw.Calls())

	remaining, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, ops[0].ID, remaining[0].ID)
	assert.Equal(t, domain.StatusFailed, remaining[0].Status)
	assert.Equal(t, "insufficient stock", remaining[0].ErrorMessage)
}

func TestCoordinator_FIFO(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	gw := newFakeGateway()

	var want []string
	for i := 0; i < 6; i++ {
		key := fmt.Sprintf("S%d", i)
		if i%2 == 1 {
			enqueueAll(t, store, resume(key))
		} else {
			enqueueAll(t, store, sale(key))
		}
		want = append(want, key)
	}

	c := NewCoordinator(store, gw, NewMonitor(true, 0, nil), nil)
	res, err := c.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Synced)
	assert.Equal(t, want, gw.Calls())
}

func TestCoordinator_SkipsWhenOffline(t *testing.T) {
	store := openStore(t)
	gw := newFakeGateway()
	obs := newRecordingObserver()
	enqueueAll(t, store, sale("A"))

	c := NewCoordinator(store, gw, NewMonitor(false, 0, nil), nil, obs)
	res, err := c.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SkipOffline, res.Skipped)
	assert.Empty(t, gw.Calls())
	require.Len(t, obs.drains, 1)
	assert.Equal(t, domain.SkipOffline, obs.drains[0].Skipped)
}

func TestCoordinator_AtMostOneDrain(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	gw := newFakeGateway()

	var keys []string
	for i := 0; i < 5; i++ {
		keys = append(keys, fmt.Sprintf("S%d", i))
		enqueueAll(t, store, sale(keys[i]))
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	gw.hook = func(string) {
		once.Do(func() { close(entered) })
		<-release
	}

	c := NewCoordinator(store, gw, NewMonitor(true, 0, nil), nil)

	first := make(chan domain.DrainResult, 1)
	go func() {
		res, _ := c.Drain(ctx)
		first <- res
	}()
	<-entered
	assert.True(t, c.Draining())

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Drain(ctx)
			assert.NoError(t, err)
			assert.Equal(t, domain.SkipBusy, res.Skipped)
		}()
	}
	wg.Wait()

	close(release)
	res := <-first
	assert.Equal(t, 5, res.Synced)
	assert.Equal(t, keys, gw.Calls(), "each entry must be submitted exactly once")
	assert.Equal(t, int32(1), gw.maxInflight.Load())
	assert.False(t, c.Draining())
}

func TestCoordinator_ConcurrentTriggers(t *testing.T) {
	store := openStore(t)
	gw := newFakeGateway()
	enqueueAll(t, store, sale("A"), sale("B"), sale("C"))

	c := NewCoordinator(store, gw, NewMonitor(true, 0, nil), nil)
	for i := 0; i < 20; i++ {
		c.Trigger(context.Background(), "test")
	}
	c.Wait()

	assert.Equal(t, []string{"A", "B", "C"}, gw.Calls())
	assert.Equal(t, int32(1), gw.maxInflight.Load())
}

func TestCoordinator_ShutdownRefusesTriggers(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	gw := newFakeGateway()
	enqueueAll(t, store, sale("A"))

	c := NewCoordinator(store, gw, NewMonitor(true, 0, nil), nil)
	c.Shutdown()
	c.Trigger(ctx, "late enqueue")
	c.Wait()

	assert.Empty(t, gw.Calls())
	ops, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, ops, 1, "entry stays queued for the next run")
}

func TestCoordinator_TriggersRacingShutdown(t *testing.T) {
	store := openStore(t)
	gw := newFakeGateway()
	enqueueAll(t, store, sale("A"), sale("B"), sale("C"))

	c := NewCoordinator(store, gw, NewMonitor(true, 0, nil), nil)

	var callers sync.WaitGroup
	for i := 0; i < 8; i++ {
		callers.Add(1)
		go func() {
			defer callers.Done()
			for j := 0; j < 50; j++ {
				c.Trigger(context.Background(), "enqueue")
			}
		}()
	}
	c.Shutdown()
	assert.False(t, c.Draining(), "no cycle may outlive Shutdown")
	callers.Wait()
	assert.False(t, c.Draining())

	seen := map[string]bool{}
	for _, call := range gw.Calls() {
		assert.False(t, seen[call], "%s submitted twice", call)
		seen[call] = true
	}
}

// lateEnqueueStore enqueues one more entry right after the coordinator
// observes an empty queue, and fires a drain request that must be absorbed.
type lateEnqueueStore struct {
	ports.QueueStore
	once    sync.Once
	onEmpty func()
}

func (s *lateEnqueueStore) NextPending(ctx context.Context) (*domain.QueuedOperation, error) {
	op, err := s.QueueStore.NextPending(ctx)
	if op == nil && err == nil {
		s.once.Do(s.onEmpty)
	}
	return op, err
}

func TestCoordinator_RerunsForRequestDuringCycle(t *testing.T) {
	ctx := context.Background()
	base := openStore(t)
	gw := newFakeGateway()
	enqueueAll(t, base, sale("A"))

	store := &lateEnqueueStore{QueueStore: base}
	c := NewCoordinator(store, gw, NewMonitor(true, 0, nil), nil)
	store.onEmpty = func() {
		_, err := base.Enqueue(ctx, sale("B"))
		require.NoError(t, err)
		res, err := c.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.SkipBusy, res.Skipped)
	}

	res, err := c.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Synced)
	assert.Equal(t, []string{"A", "B"}, gw.Calls())
}

func TestCoordinator_NoRerunAfterFailure(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	gw := newFakeGateway()
	gw.setFail("A", &domain.GatewayError{StatusCode: 400, Message: "bad"})
	enqueueAll(t, store, sale("A"), sale("B"))

	c := NewCoordinator(store, gw, NewMonitor(true, 0, nil), nil)
	gw.hook = func(key string) {
		if key == "A" {
			res, _ := c.Drain(ctx)
			assert.Equal(t, domain.SkipBusy, res.Skipped)
		}
	}

	res, err := c.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"A"}, gw.Calls())
}

func TestCoordinator_UnreachableGatewayMessage(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	gw := newFakeGateway()
	gw.setFail("A", fmt.Errorf("%w: dial tcp: connection refused", domain.ErrGatewayUnreachable))
	ops := enqueueAll(t, store, sale("A"))

	c := NewCoordinator(store, gw, NewMonitor(true, 0, nil), nil)
	_, err := c.Drain(ctx)
	require.NoError(t, err)

	got, err := store.Get(ctx, ops[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.True(t, strings.HasPrefix(got.ErrorMessage, "Network error"), got.ErrorMessage)
}

func TestCoordinator_CancelledContextStillCompletesCycle(t *testing.T) {
	store := openStore(t)
	gw := newFakeGateway()
	enqueueAll(t, store, sale("A"), sale("B"))

	ctx, cancel := context.WithCancel(context.Background())
	gw.hook = func(string) { cancel() }

	c := NewCoordinator(store, gw, NewMonitor(true, 0, nil), nil)
	res, err := c.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Synced)
}

type failingRemoveStore struct {
	ports.QueueStore
}

func (failingRemoveStore) Remove(context.Context, string) error {
	return domain.NewStorageError("remove", errors.New("disk full"))
}

func TestCoordinator_StorageErrorPropagates(t *testing.T) {
	base := openStore(t)
	gw := newFakeGateway()
	enqueueAll(t, base, sale("A"))

	c := NewCoordinator(failingRemoveStore{base}, gw, NewMonitor(true, 0, nil), nil)
	_, err := c.Drain(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsStorageError(err), "got %v", err)
	assert.False(t, c.Draining(), "guard must be released after a storage error")
}

func TestCoordinator_DrainTimingRecorded(t *testing.T) {
	store := openStore(t)
	gw := newFakeGateway()
	gw.hook = func(string) { time.Sleep(5 * time.Millisecond) }
	enqueueAll(t, store, sale("A"))

	c := NewCoordinator(store, gw, NewMonitor(true, 0, nil), nil)
	res, err := c.Drain(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Duration, 5*time.Millisecond)
}
