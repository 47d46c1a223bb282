package tillsync

import "context"

// Plugin extends a Tillsync instance with optional behavior: connectivity
// probes, config reload, reminders.
//
// Plugins are initialized in registration order during Start and shut down
// in reverse order during Stop. An Initialize error aborts Start and leaves
// the instance in StateCrashed.
type Plugin interface {
	// Name identifies the plugin in logs.
	Name() string

	// Initialize is called during Start, after the queue store is open.
	// ctx is cancelled when Stop is called; long-running work should watch it.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown is called during Stop.
	Shutdown(ctx context.Context) error
}

// PluginConfig is what a plugin receives at initialization.
type PluginConfig struct {
	StoreDir   string
	GatewayURL string
	AuthKey    string
	TerminalID string

	// Logger is the instance logger. Never nil.
	Logger Logger

	// Connectivity is the monitor shared with the coordinator.
	Connectivity Connectivity

	// Queue gives read access to queue state.
	Queue QueueReader

	// Events emits to the instance's EventHandler. Never nil.
	Events EventEmitter
}

// Connectivity is the connectivity monitor as seen by plugins and embedders.
type Connectivity interface {
	// IsOnline is the current effective state.
	IsOnline() bool

	// Set records a reading from a signal source.
	Set(online bool)

	// SetForcedOffline toggles the operator override.
	SetForcedOffline(forced bool)

	// ForcedOffline reports the operator override.
	ForcedOffline() bool

	// Subscribe registers fn for debounced transitions.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// QueueReader is read-only queue access.
type QueueReader interface {
	Snapshot(ctx context.Context) (Snapshot, error)
	List(ctx context.Context) ([]QueuedOperation, error)
}

// EventEmitter lets plugins raise events that the core does not.
type EventEmitter interface {
	OnFailedReminder(event FailedReminderEvent)
}

// BasePlugin implements Name and no-op Initialize/Shutdown. Embed it in
// plugins that only need some of the hooks.
type BasePlugin struct {
	name string
}

// NewBasePlugin returns a BasePlugin reporting name.
func NewBasePlugin(name string) BasePlugin {
	return BasePlugin{name: name}
}

func (b BasePlugin) Name() string { return b.name }

func (BasePlugin) Initialize(context.Context, PluginConfig) error { return nil }

func (BasePlugin) Shutdown(context.Context) error { return nil }
