package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/tillsync/pkg/log"
	"github.com/bft-labs/tillsync/pkg/tillsync"
)

type fakeQueue struct {
	ops []tillsync.QueuedOperation
	err error
}

func (q *fakeQueue) Snapshot(context.Context) (tillsync.Snapshot, error) {
	return tillsync.Snapshot{}, nil
}

func (q *fakeQueue) List(context.Context) ([]tillsync.QueuedOperation, error) {
	return q.ops, q.err
}

type reminderRecorder struct {
	mu     sync.Mutex
	events []tillsync.FailedReminderEvent
}

func (r *reminderRecorder) OnFailedReminder(ev tillsync.FailedReminderEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *reminderRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func op(id string, status tillsync.Status, created time.Time) tillsync.QueuedOperation {
	return tillsync.QueuedOperation{ID: id, Status: status, CreatedAt: created}
}

func initialized(t *testing.T, cfg Config, q tillsync.QueueReader, rec *reminderRecorder) *Plugin {
	t.Helper()
	p := New(cfg)
	require.NoError(t, p.Initialize(context.Background(), tillsync.PluginConfig{
		Logger: log.NewNoopLogger(),
		Queue:  q,
		Events: rec,
	}))
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p
}

func TestCheckOnce_ReportsFailedEntries(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	q := &fakeQueue{ops: []tillsync.QueuedOperation{
		op("a", tillsync.StatusPending, base),
		op("b", tillsync.StatusFailed, base.Add(2*time.Minute)),
		op("c", tillsync.StatusFailed, base.Add(time.Minute)),
		op("d", tillsync.StatusSyncing, base.Add(3*time.Minute)),
	}}
	rec := &reminderRecorder{}
	p := initialized(t, Config{Schedule: "@every 1h"}, q, rec)

	ev, ok := p.checkOnce(context.Background())
	require.True(t, ok)
	assert.Equal(t, 2, ev.Failed)
	assert.True(t, ev.Oldest.Equal(base.Add(time.Minute)))
	assert.Equal(t, 1, rec.count())
}

func TestCheckOnce_SilentWithoutFailures(t *testing.T) {
	q := &fakeQueue{ops: []tillsync.QueuedOperation{
		op("a", tillsync.StatusPending, time.Now()),
	}}
	rec := &reminderRecorder{}
	p := initialized(t, Config{Schedule: "@every 1h"}, q, rec)

	_, ok := p.checkOnce(context.Background())
	assert.False(t, ok)
	assert.Zero(t, rec.count())
}

func TestCheckOnce_ListError(t *testing.T) {
	q := &fakeQueue{err: errors.New("disk gone")}
	rec := &reminderRecorder{}
	p := initialized(t, Config{Schedule: "@every 1h"}, q, rec)

	_, ok := p.checkOnce(context.Background())
	assert.False(t, ok)
	assert.Zero(t, rec.count())
}

func TestInitialize_RunImmediately(t *testing.T) {
	q := &fakeQueue{ops: []tillsync.QueuedOperation{
		op("a", tillsync.StatusFailed, time.Now()),
	}}
	rec := &reminderRecorder{}
	initialized(t, Config{Schedule: "@every 1h", RunImmediately: true}, q, rec)

	require.Eventually(t, func() bool { return rec.count() == 1 },
		5*time.Second, 5*time.Millisecond)
}

func TestInitialize_ScheduledChecks(t *testing.T) {
	q := &fakeQueue{ops: []tillsync.QueuedOperation{
		op("a", tillsync.StatusFailed, time.Now()),
	}}
	rec := &reminderRecorder{}
	initialized(t, Config{Schedule: "@every 1s"}, q, rec)

	require.Eventually(t, func() bool { return rec.count() >= 1 },
		5*time.Second, 10*time.Millisecond)
}

func TestInitialize_InvalidSchedule(t *testing.T) {
	p := New(Config{Schedule: "whenever"})
	err := p.Initialize(context.Background(), tillsync.PluginConfig{
		Logger: log.NewNoopLogger(),
		Queue:  &fakeQueue{},
	})
	require.Error(t, err)
}

func TestShutdown_Idempotent(t *testing.T) {
	p := New(DefaultConfig())
	assert.Equal(t, DefaultSchedule, p.schedule)
	assert.Equal(t, "reminder", p.Name())
	require.NoError(t, p.Shutdown(context.Background()))

	p = initialized(t, Config{Schedule: "@daily"}, &fakeQueue{}, &reminderRecorder{})
	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()))
}
