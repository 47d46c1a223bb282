// Package configwatcher hot-reloads the runtime-adjustable parts of the
// tillsync config file. When the file changes, log_level is applied to
// every logger and offline_mode toggles the operator override on the
// connectivity monitor. Other keys take effect on restart.
package configwatcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/tillsync/internal/cliconfig"
	"github.com/bft-labs/tillsync/pkg/log"
	"github.com/bft-labs/tillsync/pkg/tillsync"
)

// Plugin watches a config file and applies reloadable settings.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	path          string
	debounceDelay time.Duration
	onReload      func(cliconfig.FileConfig)

	// Runtime state
	logger       tillsync.Logger
	connectivity tillsync.Connectivity
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	debounce     *time.Timer
}

// Config holds configuration options for the config watcher plugin.
type Config struct {
	// Path is the TOML config file to watch. Empty disables the plugin.
	Path string

	// DebounceDelay is the delay to wait after a file change before reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration

	// OnReload, if set, is called with each successfully parsed file.
	OnReload func(cliconfig.FileConfig)
}

// DefaultConfig returns a Config watching the default config path.
func DefaultConfig() Config {
	return Config{
		Path:          cliconfig.DefaultConfigPath(),
		DebounceDelay: 100 * time.Millisecond,
	}
}

// New creates a new config watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}

	return &Plugin{
		path:          cfg.Path,
		debounceDelay: cfg.DebounceDelay,
		onReload:      cfg.OnReload,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "configwatcher"
}

// Initialize starts watching the config file's directory. Watching the
// directory rather than the file survives editors that replace the file
// on save.
func (p *Plugin) Initialize(ctx context.Context, cfg tillsync.PluginConfig) error {
	p.mu.Lock()
	p.logger = cfg.Logger
	p.connectivity = cfg.Connectivity
	p.mu.Unlock()

	if p.path == "" {
		p.logger.Warn("config watcher disabled: no config file configured")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		p.logger.Warn("config watcher disabled: cannot watch config directory",
			log.String("path", p.path),
			log.Err(err))
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.logger.Info("config watcher plugin initialized", log.String("path", p.path))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)

	return nil
}

// Shutdown stops the config watcher.
func (p *Plugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	name := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			p.debounceReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher: watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceReload(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}

	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		p.reload()
	})
}

// reload re-reads the file and applies the reloadable keys. A file that
// fails to parse leaves the running settings untouched.
func (p *Plugin) reload() {
	fc, err := cliconfig.LoadFileConfig(p.path)
	if err != nil {
		p.logger.Error("config watcher: reload failed, keeping current settings",
			log.String("path", p.path),
			log.Err(err))
		return
	}

	if fc.LogLevel != "" {
		if err := log.SetLevel(fc.LogLevel); err != nil {
			p.logger.Error("config watcher: invalid log_level", log.Err(err))
		} else {
			p.logger.Info("config watcher: log level applied", log.String("level", fc.LogLevel))
		}
	}

	if fc.OfflineMode != nil && p.connectivity != nil {
		if p.connectivity.ForcedOffline() != *fc.OfflineMode {
			p.connectivity.SetForcedOffline(*fc.OfflineMode)
			p.logger.Info("config watcher: offline mode applied", log.Bool("offline", *fc.OfflineMode))
		}
	}

	if p.onReload != nil {
		p.onReload(fc)
	}
}

var _ tillsync.Plugin = (*Plugin)(nil)
