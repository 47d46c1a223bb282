package tillsync

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bft-labs/tillsync/internal/adapters/fs"
	httpAdapter "github.com/bft-labs/tillsync/internal/adapters/http"
	"github.com/bft-labs/tillsync/internal/adapters/metrics"
	"github.com/bft-labs/tillsync/internal/adapters/sqlite"
	"github.com/bft-labs/tillsync/internal/api"
	"github.com/bft-labs/tillsync/internal/app"
	"github.com/bft-labs/tillsync/internal/domain"
	"github.com/bft-labs/tillsync/internal/ports"
	"github.com/bft-labs/tillsync/pkg/log"
)

// Tillsync is an offline-first sales queue that can be embedded in a
// point-of-sale application. Use New() to create an instance, then Start()
// to open the queue and begin draining it whenever the terminal is online.
type Tillsync struct {
	config    Config
	opts      options
	lifecycle *app.Lifecycle
	monitor   *app.Monitor
	gateway   ports.Gateway
	metrics   *metrics.Collector
	emitter   *eventEmitterWrapper
	logger    ports.Logger
	plugins   []Plugin

	// mu serializes Start and Stop.
	mu     sync.Mutex
	cancel context.CancelFunc

	// svcMu guards the components that only exist while running. It is
	// never held across plugin or gateway calls.
	svcMu     sync.RWMutex
	store     ports.QueueStore
	ownsStore bool
	coord     *app.Coordinator
	svc       *app.Service
}

var _ api.QueueService = (*Tillsync)(nil)

// New creates a new Tillsync instance with the given configuration.
// The instance is created in StateStopped; call Start() to open the queue.
// Returns an error wrapping ErrInvalidConfig if configuration is invalid.
func New(cfg Config, opts ...Option) (*Tillsync, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		logger:     log.NewNoopLogger(),
		metrics:    true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewNoopLogger()
	}

	if o.store == nil && cfg.StoreDir == "" {
		return nil, fmt.Errorf("%w: store dir is required", domain.ErrInvalidConfig)
	}
	if o.gateway == nil && cfg.GatewayURL == "" {
		return nil, fmt.Errorf("%w: gateway url is required", domain.ErrInvalidConfig)
	}

	logger := o.logger
	emitter := &eventEmitterWrapper{handler: o.eventHandler, now: time.Now}

	gateway := o.gateway
	if gateway == nil {
		gateway = httpAdapter.NewGateway(o.httpClient, httpAdapter.GatewayConfig{
			BaseURL:         cfg.GatewayURL,
			AuthKey:         cfg.AuthKey,
			TerminalID:      cfg.TerminalID,
			IdempotencyKeys: cfg.IdempotencyKeys,
		}, logger)
	}

	monitor := app.NewMonitor(!cfg.StartOffline, cfg.DebounceDelay, logger,
		app.WithForcedOffline(cfg.OfflineMode))

	t := &Tillsync{
		config:    cfg,
		opts:      o,
		lifecycle: app.NewLifecycle(logger, emitter),
		monitor:   monitor,
		gateway:   gateway,
		emitter:   emitter,
		logger:    logger,
		plugins:   o.plugins,
	}

	if o.metrics {
		t.metrics = metrics.New()
		t.metrics.ObserveOnline(monitor.IsOnline())
		t.metrics.RegisterQueueStats(t.queueStats)
	}

	monitor.Subscribe(t.connectivityChanged)
	return t, nil
}

// Start opens the queue store, initializes plugins and drains anything left
// pending by a previous run. It returns once the queue accepts work.
// Returns ErrAlreadyRunning if already running, ErrStoreLocked if another
// process holds the store.
func (t *Tillsync) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := t.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.lifecycle.SetCancel(cancel)

	store, owned, err := t.openStore()
	if err != nil {
		t.logger.Error("failed to open queue store", log.Err(err))
		cancel()
		_ = t.lifecycle.TransitionTo(app.StateCrashed, "open store: "+err.Error())
		return err
	}

	coord := app.NewCoordinator(store, t.gateway, t.monitor, t.logger, t.emitter)
	if t.metrics != nil {
		coord.AddObserver(t.metrics)
	}
	svc := app.NewService(store, t.gateway, t.monitor, coord, t.logger)

	t.svcMu.Lock()
	t.store, t.ownsStore, t.coord, t.svc = store, owned, coord, svc
	t.svcMu.Unlock()

	pluginCfg := PluginConfig{
		StoreDir:     t.config.StoreDir,
		GatewayURL:   t.config.GatewayURL,
		AuthKey:      t.config.AuthKey,
		TerminalID:   t.config.TerminalID,
		Logger:       t.logger,
		Connectivity: t.monitor,
		Queue:        svc,
		Events:       t.emitter,
	}
	for i, p := range t.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			t.logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			cancel()
			t.shutdownPlugins(t.plugins[:i])
			t.detach()
			coord.Shutdown()
			if owned {
				_ = store.Close()
			}
			_ = t.lifecycle.TransitionTo(app.StateCrashed, "plugin init failed: "+p.Name())
			return fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
		t.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}

	t.cancel = cancel

	t.lifecycle.Go(func() {
		if err := t.lifecycle.TransitionTo(app.StateRunning, "queue open"); err != nil {
			t.logger.Warn("failed to transition to running", log.Err(err))
			return
		}
		if t.monitor.IsOnline() {
			coord.Trigger(runCtx, "startup")
		}
		<-runCtx.Done()
	})

	return nil
}

// Stop waits for an in-flight drain cycle to finish, shuts plugins down in
// reverse order and closes the store.
// Waits up to 30 seconds before giving up.
// Returns nil on graceful shutdown, ErrShutdownTimeout if forced.
func (t *Tillsync) Stop() error {
	t.mu.Lock()
	if !t.lifecycle.CanStop() {
		t.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err := t.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		t.mu.Unlock()
		return err
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()

	coord, store, owned := t.detach()

	if coord != nil {
		t.lifecycle.Go(coord.Shutdown)
	}
	err := t.lifecycle.WaitWithTimeout(app.ShutdownTimeout)

	t.shutdownPlugins(t.plugins)

	switch {
	case owned && err == nil:
		if closeErr := store.Close(); closeErr != nil {
			t.logger.Error("failed to close queue store", log.Err(closeErr))
		}
	case owned:
		t.logger.Warn("leaving queue store open, drain still in flight")
	}

	if err != nil {
		_ = t.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
	} else {
		_ = t.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	}
	return err
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (t *Tillsync) Status() State {
	return convertState(t.lifecycle.State())
}

// StatusInfo returns the current state with the time and reason of the
// transition that produced it.
func (t *Tillsync) StatusInfo() StateInfo {
	tr := t.lifecycle.LastTransition()
	return StateInfo{State: convertState(tr.State), Since: tr.Since, Reason: tr.Reason}
}

// Connectivity returns the monitor. Feed it with Set from the platform's
// network signal, or register the netprobe plugin.
func (t *Tillsync) Connectivity() Connectivity {
	return t.monitor
}

// Submit sends a sale straight to the gateway when nothing is queued ahead
// of it and the terminal is online, and queues it otherwise. A rejection by
// the gateway is returned as a *GatewayError and nothing is stored.
func (t *Tillsync) Submit(ctx context.Context, task Task) (SubmitResult, error) {
	svc, err := t.service()
	if err != nil {
		return SubmitResult{}, err
	}
	return svc.Submit(ctx, task)
}

// Enqueue stores task for replay and triggers a drain when online.
func (t *Tillsync) Enqueue(ctx context.Context, task Task) (QueuedOperation, error) {
	svc, err := t.service()
	if err != nil {
		return QueuedOperation{}, err
	}
	return svc.Enqueue(ctx, task)
}

// Retry runs a drain cycle and waits for it.
func (t *Tillsync) Retry(ctx context.Context) (DrainResult, error) {
	svc, err := t.service()
	if err != nil {
		return DrainResult{}, err
	}
	return svc.Retry(ctx)
}

// RetryOperation returns a failed entry to pending and triggers a drain.
func (t *Tillsync) RetryOperation(ctx context.Context, id string) (QueuedOperation, error) {
	svc, err := t.service()
	if err != nil {
		return QueuedOperation{}, err
	}
	return svc.RetryOperation(ctx, id)
}

// Discard removes a failed entry.
func (t *Tillsync) Discard(ctx context.Context, id string) error {
	svc, err := t.service()
	if err != nil {
		return err
	}
	return svc.Discard(ctx, id)
}

// Snapshot returns queue counts and connectivity.
func (t *Tillsync) Snapshot(ctx context.Context) (Snapshot, error) {
	svc, err := t.service()
	if err != nil {
		return Snapshot{}, err
	}
	return svc.Snapshot(ctx)
}

// List returns every queued entry in replay order.
func (t *Tillsync) List(ctx context.Context) ([]QueuedOperation, error) {
	svc, err := t.service()
	if err != nil {
		return nil, err
	}
	return svc.List(ctx)
}

// Get returns one queued entry.
func (t *Tillsync) Get(ctx context.Context, id string) (QueuedOperation, error) {
	svc, err := t.service()
	if err != nil {
		return QueuedOperation{}, err
	}
	return svc.Get(ctx, id)
}

// MetricsHandler serves the prometheus metrics, or nil when disabled.
func (t *Tillsync) MetricsHandler() http.Handler {
	if t.metrics == nil {
		return nil
	}
	return t.metrics.Handler()
}

// Handler returns the operator HTTP API over this instance, including
// /metrics unless disabled. Requests made while stopped get a 503.
func (t *Tillsync) Handler() http.Handler {
	opts := []api.ServerOption{api.WithLogger(t.logger)}
	if h := t.MetricsHandler(); h != nil {
		opts = append(opts, api.WithMetricsHandler(h))
	}
	return api.NewServer(t, opts...)
}

func (t *Tillsync) service() (*app.Service, error) {
	t.svcMu.RLock()
	defer t.svcMu.RUnlock()
	if t.svc == nil {
		return nil, domain.ErrNotRunning
	}
	return t.svc, nil
}

// detach clears the running components and returns what Stop needs to
// wind down.
func (t *Tillsync) detach() (*app.Coordinator, ports.QueueStore, bool) {
	t.svcMu.Lock()
	defer t.svcMu.Unlock()
	coord, store, owned := t.coord, t.store, t.ownsStore
	t.coord, t.svc, t.store, t.ownsStore = nil, nil, nil, false
	return coord, store, owned
}

func (t *Tillsync) openStore() (ports.QueueStore, bool, error) {
	if t.opts.store != nil {
		return t.opts.store, false, nil
	}
	switch t.config.StoreBackend {
	case BackendSQLite:
		s, err := sqlite.Open(t.config.StoreDir, sqlite.WithLogger(t.logger))
		if err != nil {
			return nil, false, err
		}
		return s, true, nil
	default:
		q, err := fs.Open(t.config.StoreDir, fs.WithLogger(t.logger))
		if err != nil {
			return nil, false, err
		}
		return q, true, nil
	}
}

func (t *Tillsync) shutdownPlugins(plugins []Plugin) {
	ctx := context.Background()
	for i := len(plugins) - 1; i >= 0; i-- {
		p := plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			t.logger.Error("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			continue
		}
		t.logger.Info("plugin shutdown complete", log.String("plugin", p.Name()))
	}
}

// connectivityChanged runs for every debounced transition.
func (t *Tillsync) connectivityChanged(online bool) {
	t.metrics.SetOnline(online)
	t.emitter.connectivityChanged(online)
	t.logger.Info("connectivity changed", log.Bool("online", online))

	if !online {
		return
	}
	t.svcMu.RLock()
	coord := t.coord
	t.svcMu.RUnlock()
	if coord != nil {
		coord.Trigger(context.Background(), "connectivity")
	}
}

func (t *Tillsync) queueStats() domain.Stats {
	t.svcMu.RLock()
	store := t.store
	t.svcMu.RUnlock()
	if store == nil {
		return domain.Stats{}
	}
	ops, err := store.List(context.Background())
	if err != nil {
		return domain.Stats{}
	}
	return domain.Tally(ops)
}
