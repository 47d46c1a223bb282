// Package tillsync runs an offline-first sale queue with one call.
//
// Example usage:
//
//	cfg := tillsync.DefaultConfig()
//	cfg.StoreDir = "/var/lib/tillsync"
//	cfg.GatewayURL = "https://pos.example.com"
//	if err := tillsync.Run(ctx, cfg, netprobe.WithDefaultNetProbe()); err != nil {
//	    log.Fatal(err)
//	}
//
// Embedders that need to submit sales or inspect the queue use
// pkg/tillsync directly.
package tillsync

import (
	"context"
	"errors"

	core "github.com/bft-labs/tillsync/pkg/tillsync"
)

// Config holds the configuration for a tillsync instance.
type Config = core.Config

// Option customizes the instance Run creates.
type Option = core.Option

// DefaultConfig returns a Config with sensible default values.
// At minimum, StoreDir and GatewayURL must be set before calling Run.
func DefaultConfig() Config {
	var cfg Config
	cfg.SetDefaults()
	return cfg
}

// Run starts an instance and blocks until ctx is cancelled, then stops it.
// Queued sales drain whenever the connectivity monitor reports online.
func Run(ctx context.Context, cfg Config, opts ...Option) error {
	ts, err := core.New(cfg, opts...)
	if err != nil {
		return err
	}
	if err := ts.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	if err := ts.Stop(); err != nil && !errors.Is(err, core.ErrNotRunning) {
		return err
	}
	return nil
}
