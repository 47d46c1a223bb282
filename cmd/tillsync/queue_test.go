package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/bft-labs/tillsync/internal/domain"
	"github.com/bft-labs/tillsync/pkg/tillsync"
)

type nullGateway struct{}

func (nullGateway) SubmitSale(context.Context, tillsync.SalePayload) (tillsync.SaleRecord, error) {
	return tillsync.SaleRecord{}, errors.New("unreachable in tests")
}

func (nullGateway) ResumeHeldTransaction(context.Context, string, []tillsync.Payment) (tillsync.SaleRecord, error) {
	return tillsync.SaleRecord{}, errors.New("unreachable in tests")
}

// offlineDaemon starts an instance that never drains and serves its
// operator API on an httptest server.
func offlineDaemon(t *testing.T) (*tillsync.Tillsync, string) {
	t.Helper()
	ts, err := tillsync.New(tillsync.Config{
		StoreDir:      t.TempDir(),
		StartOffline:  true,
		DebounceDelay: time.Millisecond,
	}, tillsync.WithGateway(nullGateway{}))
	require.NoError(t, err)
	require.NoError(t, ts.Start(context.Background()))
	t.Cleanup(func() { _ = ts.Stop() })

	require.Eventually(t, func() bool { return ts.Status() == tillsync.StateRunning },
		5*time.Second, 5*time.Millisecond)

	srv := httptest.NewServer(ts.Handler())
	t.Cleanup(srv.Close)
	return ts, srv.URL
}

func sale(note string) tillsync.Task {
	return tillsync.RegularSale{Sale: tillsync.SalePayload{
		StoreID:  "store-1",
		Items:    []tillsync.CartLine{{ProductID: "sku-1", Quantity: 1, UnitPrice: 250}},
		Payments: []tillsync.Payment{{Method: "cash", Amount: 250}},
		Notes:    note,
	}}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newStatusCommand()
	switch args[0] {
	case "list":
		cmd = newListCommand()
	case "retry":
		cmd = newRetryCommand()
	case "discard":
		cmd = newDiscardCommand()
	}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args[1:])
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatusCommand_JSON(t *testing.T) {
	ts, addr := offlineDaemon(t)
	_, err := ts.Enqueue(context.Background(), sale("a"))
	require.NoError(t, err)

	out, err := execute(t, "status", "--addr", addr, "-o", "json")
	require.NoError(t, err)

	var st statusView
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 1, st.Length)
	assert.Equal(t, 1, st.Pending)
	assert.False(t, st.Online)
}

func TestListCommand_YAML(t *testing.T) {
	ts, addr := offlineDaemon(t)
	first, err := ts.Enqueue(context.Background(), sale("a"))
	require.NoError(t, err)
	second, err := ts.Enqueue(context.Background(), sale("b"))
	require.NoError(t, err)

	out, err := execute(t, "list", "--addr", addr, "-o", "yaml")
	require.NoError(t, err)

	var ops []operationView
	require.NoError(t, yaml.Unmarshal([]byte(out), &ops))
	require.Len(t, ops, 2)
	assert.Equal(t, first.ID, ops[0].ID)
	assert.Equal(t, second.ID, ops[1].ID)
	assert.Equal(t, "pending", ops[0].Status)
}

func TestListCommand_RejectsUnknownStatus(t *testing.T) {
	_, err := execute(t, "list", "--addr", "127.0.0.1:1", "--status", "done")
	require.Error(t, err)
}

func TestDiscardCommand_PendingEntryConflicts(t *testing.T) {
	ts, addr := offlineDaemon(t)
	op, err := ts.Enqueue(context.Background(), sale("a"))
	require.NoError(t, err)

	_, err = execute(t, "discard", "--addr", addr, op.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFailed)

	_, err = execute(t, "discard", "--addr", addr, "missing")
	assert.ErrorIs(t, err, domain.ErrOperationNotFound)
}

func TestRetryCommand_OfflineSkips(t *testing.T) {
	_, addr := offlineDaemon(t)

	out, err := execute(t, "retry", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "drain skipped: offline\n", out)
}

func TestRenderStatus_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderStatus(&buf, statusView{Length: 3, Failed: 1, Online: true}, formatTable))

	out := strings.ToLower(buf.String())
	assert.Contains(t, out, "online")
	assert.Contains(t, out, "true")
	assert.Contains(t, out, "failed")

	assert.Error(t, renderStatus(&buf, statusView{}, "xml"))
}

func TestRenderOperations_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderOperations(&buf, nil, formatTable))
	assert.Equal(t, "queue is empty\n", buf.String())

	buf.Reset()
	ops := []operationView{{
		ID:           "op-1",
		Kind:         "regular_sale",
		Status:       "failed",
		CreatedAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		ErrorMessage: "Insufficient stock",
	}}
	require.NoError(t, renderOperations(&buf, ops, formatTable))
	assert.Contains(t, buf.String(), "op-1")
	assert.Contains(t, buf.String(), "Insufficient stock")
}

func TestDrainSummary(t *testing.T) {
	assert.Equal(t, "nothing to sync", drainSummary(domain.DrainResult{}))
	assert.Equal(t, "synced 2", drainSummary(domain.DrainResult{Synced: 2}))
	assert.Equal(t, "drain skipped: busy", drainSummary(domain.DrainResult{Skipped: domain.SkipBusy}))
	assert.Equal(t, "synced 1, stopped at failed entry x",
		drainSummary(domain.DrainResult{Synced: 1, Failed: 1, FailedID: "x"}))
}
