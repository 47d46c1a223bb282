package tillsync

import (
	"fmt"
	"time"

	"github.com/bft-labs/tillsync/internal/domain"
)

// Store backends accepted in Config.StoreBackend.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Defaults applied by Config.SetDefaults.
const (
	DefaultHTTPTimeout   = 15 * time.Second
	DefaultDebounceDelay = 500 * time.Millisecond
)

// Config holds the settings of an embedded tillsync instance.
type Config struct {
	// StoreDir is the directory holding the durable queue and its lock file.
	// Required unless a store is injected with WithStore.
	StoreDir string

	// StoreBackend selects the queue store: "file" (default) or "sqlite".
	StoreBackend string

	// GatewayURL is the base URL of the remote sales service.
	// Required unless a gateway is injected with WithGateway.
	GatewayURL string

	// AuthKey is sent as a bearer token to the gateway.
	AuthKey string

	// TerminalID identifies this register to the gateway.
	TerminalID string

	// HTTPTimeout bounds a single gateway request. It is the only timeout a
	// drain cycle is subject to.
	// Default: 15 seconds
	HTTPTimeout time.Duration

	// DebounceDelay coalesces connectivity flaps before subscribers hear about them.
	// Default: 500 milliseconds
	DebounceDelay time.Duration

	// StartOffline sets the initial connectivity reading to offline. Leave it
	// false when the embedding application or a probe plugin reports the real
	// signal shortly after start.
	StartOffline bool

	// OfflineMode forces the terminal offline regardless of the signal.
	OfflineMode bool

	// IdempotencyKeys sends the operation id as an Idempotency-Key header.
	IdempotencyKeys bool
}

// SetDefaults fills zero values with their defaults.
func (c *Config) SetDefaults() {
	if c.StoreBackend == "" {
		c.StoreBackend = BackendFile
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.DebounceDelay == 0 {
		c.DebounceDelay = DefaultDebounceDelay
	}
}

// Validate checks the configuration. Requirements that an injected store or
// gateway satisfies are checked by New, which knows the options.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("%w: unknown store backend %q", domain.ErrInvalidConfig, c.StoreBackend)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("%w: http timeout must not be negative", domain.ErrInvalidConfig)
	}
	if c.DebounceDelay < 0 {
		return fmt.Errorf("%w: debounce delay must not be negative", domain.ErrInvalidConfig)
	}
	return nil
}
