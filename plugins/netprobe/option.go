package netprobe

import "github.com/bft-labs/tillsync/pkg/tillsync"

// WithNetProbe returns a tillsync Option that enables the network probe.
//
// Usage:
//
//	ts, err := tillsync.New(cfg,
//	    netprobe.WithNetProbe(netprobe.Config{
//	        URL:      "https://pos.example.com/healthz",
//	        Interval: 10 * time.Second,
//	    }),
//	)
func WithNetProbe(cfg Config) tillsync.Option {
	return tillsync.WithPlugin(New(cfg))
}

// WithDefaultNetProbe probes the gateway URL with default settings
// (every 15s online, backoff from 1s while offline).
func WithDefaultNetProbe() tillsync.Option {
	return WithNetProbe(DefaultConfig())
}
