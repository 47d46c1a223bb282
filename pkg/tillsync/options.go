package tillsync

import (
	"github.com/bft-labs/tillsync/internal/ports"
)

// Option configures optional behavior of Tillsync.
type Option func(*options)

type options struct {
	httpClient   ports.HTTPClient
	logger       ports.Logger
	eventHandler EventHandler
	plugins      []Plugin
	store        ports.QueueStore
	gateway      ports.Gateway
	metrics      bool
}

// WithHTTPClient sets the client used for gateway requests.
// If not provided, a default client with the configured timeout is used.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for tillsync events.
// If not provided, no events are emitted.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithPlugin registers a plugin to be initialized when Tillsync starts.
// Plugins are initialized in registration order and shutdown in reverse order.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithStore injects a queue store. The caller keeps ownership: Stop does not
// close it. Config.StoreDir is not required.
func WithStore(store QueueStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithGateway injects the remote submission gateway. Config.GatewayURL is
// not required.
func WithGateway(gateway Gateway) Option {
	return func(o *options) {
		o.gateway = gateway
	}
}

// WithoutMetrics disables the prometheus collector. MetricsHandler then
// returns nil and the operator handler serves no /metrics route.
func WithoutMetrics() Option {
	return func(o *options) {
		o.metrics = false
	}
}
