// Package tillsync provides an embeddable offline-first sales queue for
// point-of-sale terminals.
//
// Sales rung up while the remote service is unreachable are stored durably
// on the terminal and replayed in the order they were taken once
// connectivity returns. A replayed entry the service rejects is parked as
// failed; it never blocks the checkout flow and is never retried without an
// operator asking for it.
//
// # Basic Usage
//
//	cfg := tillsync.Config{
//	    StoreDir:   "/var/lib/tillsync",
//	    GatewayURL: "https://pos.example.com",
//	    AuthKey:    "your-api-key",
//	    TerminalID: "till-01",
//	}
//
//	ts, err := tillsync.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := ts.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer ts.Stop()
//
//	res, err := ts.Submit(ctx, tillsync.RegularSale{Sale: payload})
//	switch {
//	case err != nil:
//	    // rejected by the service, or the queue could not be written
//	case res.Queued != nil:
//	    // stored for replay
//	default:
//	    // committed: res.Record
//	}
//
// # Connectivity
//
// The instance drains its queue on every debounced offline-to-online
// transition of its [Connectivity] monitor. Feed the monitor from the
// platform's network signal with Set, or register the netprobe plugin,
// which probes the gateway periodically.
//
// # Queue Store
//
// Config.StoreBackend selects a JSON file ("file", the default) or an SQLite
// database ("sqlite") under Config.StoreDir. Both take an exclusive lock on
// the directory, so two processes cannot share a queue. Entries that were
// mid-submission when the process died are marked failed on the next start
// because their outcome on the server is unknown.
//
// # Event Handling
//
// Implement [EventHandler] (embedding [BaseEventHandler] for defaults) and
// pass it via [WithEventHandler] to hear about lifecycle changes, replay
// outcomes and connectivity transitions.
//
// # Operator API
//
// [Tillsync.Handler] returns an HTTP handler exposing queue status, entry
// inspection, retry, discard and prometheus metrics.
//
// # Lifecycle States
//
// An instance is in one of five states: [StateStopped], [StateStarting],
// [StateRunning], [StateStopping], or [StateCrashed]. Use [Tillsync.Status]
// to query the current state.
package tillsync
