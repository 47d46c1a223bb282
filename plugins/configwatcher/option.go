package configwatcher

import "github.com/bft-labs/tillsync/pkg/tillsync"

// WithConfigWatcher returns a tillsync Option that enables config hot reload.
//
// Usage:
//
//	ts, err := tillsync.New(cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{
//	        Path:          "/etc/tillsync/config.toml",
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithConfigWatcher(cfg Config) tillsync.Option {
	plugin := New(cfg)
	return tillsync.WithPlugin(plugin)
}

// WithDefaultConfigWatcher watches ~/.tillsync/config.toml with a 100ms
// debounce.
func WithDefaultConfigWatcher() tillsync.Option {
	return WithConfigWatcher(DefaultConfig())
}
