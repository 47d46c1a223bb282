package tillsync_test

import (
	"context"
	"fmt"
	"os"

	"github.com/bft-labs/tillsync/pkg/tillsync"
)

// ExampleNew shows a sale being queued while the terminal is offline.
func ExampleNew() {
	dir, err := os.MkdirTemp("", "tillsync-example")
	if err != nil {
		fmt.Printf("temp dir: %v\n", err)
		return
	}
	defer os.RemoveAll(dir)

	cfg := tillsync.Config{
		StoreDir:     dir,
		GatewayURL:   "https://pos.example.com",
		AuthKey:      "your-api-key",
		TerminalID:   "till-01",
		StartOffline: true,
	}

	ts, err := tillsync.New(cfg)
	if err != nil {
		fmt.Printf("failed to create tillsync: %v\n", err)
		return
	}

	ctx := context.Background()
	if err := ts.Start(ctx); err != nil {
		fmt.Printf("failed to start: %v\n", err)
		return
	}
	defer ts.Stop()

	res, err := ts.Submit(ctx, tillsync.RegularSale{Sale: tillsync.SalePayload{
		StoreID:  "store-1",
		Items:    []tillsync.CartLine{{ProductID: "sku-42", Quantity: 2, UnitPrice: 350}},
		Payments: []tillsync.Payment{{Method: "cash", Amount: 700}},
		Totals:   tillsync.Totals{Subtotal: 700, Total: 700},
	}})
	if err != nil {
		fmt.Printf("submit: %v\n", err)
		return
	}
	fmt.Printf("queued: %v\n", res.Queued != nil)

	snap, _ := ts.Snapshot(ctx)
	fmt.Printf("pending: %d online: %v\n", snap.Pending, snap.Online)

	// Output:
	// queued: true
	// pending: 1 online: false
}

// Example_withEventHandler demonstrates how to receive tillsync events.
func Example_withEventHandler() {
	handler := &myEventHandler{}

	cfg := tillsync.Config{
		StoreDir:   "/var/lib/tillsync",
		GatewayURL: "https://pos.example.com",
	}

	ts, err := tillsync.New(cfg, tillsync.WithEventHandler(handler))
	if err != nil {
		fmt.Printf("failed to create tillsync: %v\n", err)
		return
	}

	_ = ts // Start, submit sales...
}

// myEventHandler implements tillsync.EventHandler for event notifications.
type myEventHandler struct {
	tillsync.BaseEventHandler // Embed for no-op defaults
}

func (h *myEventHandler) OnSyncSuccess(event tillsync.SyncSuccessEvent) {
	fmt.Printf("Synced %s as %s after %v\n",
		event.OperationID, event.Record.Number, event.Queued)
}

func (h *myEventHandler) OnSyncFailure(event tillsync.SyncFailureEvent) {
	fmt.Printf("Parked %s: %s\n", event.OperationID, event.Message)
}

// Example_withCustomLogger demonstrates injecting a custom logger.
func Example_withCustomLogger() {
	cfg := tillsync.Config{
		StoreDir:   "/var/lib/tillsync",
		GatewayURL: "https://pos.example.com",
	}

	ts, err := tillsync.New(cfg, tillsync.WithLogger(&customLogger{}))
	if err != nil {
		fmt.Printf("failed to create tillsync: %v\n", err)
		return
	}

	_ = ts
}

// customLogger implements tillsync.Logger.
type customLogger struct{}

func (l *customLogger) Debug(msg string, fields ...tillsync.LogField) {
	fmt.Printf("[DEBUG] %s\n", msg)
}

func (l *customLogger) Info(msg string, fields ...tillsync.LogField) {
	fmt.Printf("[INFO] %s\n", msg)
}

func (l *customLogger) Warn(msg string, fields ...tillsync.LogField) {
	fmt.Printf("[WARN] %s\n", msg)
}

func (l *customLogger) Error(msg string, fields ...tillsync.LogField) {
	fmt.Printf("[ERROR] %s\n", msg)
}
