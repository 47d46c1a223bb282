// Package netprobe feeds the tillsync connectivity monitor from an HTTP
// reachability probe. While online the target is polled at a fixed
// interval; after a failed probe it is retried on an exponential schedule
// so a terminal that comes back online starts draining quickly.
package netprobe

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/bft-labs/tillsync/pkg/log"
	"github.com/bft-labs/tillsync/pkg/tillsync"
)

// Plugin probes a URL and reports the result to the connectivity monitor.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	url            string
	interval       time.Duration
	timeout        time.Duration
	initialBackoff time.Duration
	httpClient     *http.Client

	// Runtime state
	target       string
	logger       tillsync.Logger
	connectivity tillsync.Connectivity
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// Config holds configuration options for the probe plugin.
type Config struct {
	// URL is the probe target. Empty means the gateway URL.
	URL string

	// Interval between probes while online. It also caps the offline backoff.
	// Default: 15 seconds
	Interval time.Duration

	// Timeout bounds a single probe request.
	// Default: 5 seconds
	Timeout time.Duration

	// InitialBackoff is the first retry delay after a failed probe.
	// Default: 1 second
	InitialBackoff time.Duration

	// HTTPClient overrides the client used for probes.
	HTTPClient *http.Client
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:       15 * time.Second,
		Timeout:        5 * time.Second,
		InitialBackoff: time.Second,
	}
}

// New creates a probe plugin with the given configuration.
func New(cfg Config) *Plugin {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.InitialBackoff > cfg.Interval {
		cfg.InitialBackoff = cfg.Interval
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return &Plugin{
		url:            cfg.URL,
		interval:       cfg.Interval,
		timeout:        cfg.Timeout,
		initialBackoff: cfg.InitialBackoff,
		httpClient:     client,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "netprobe"
}

// Initialize starts the probe loop.
func (p *Plugin) Initialize(ctx context.Context, cfg tillsync.PluginConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger = cfg.Logger
	p.connectivity = cfg.Connectivity
	p.target = p.url
	if p.target == "" {
		p.target = cfg.GatewayURL
	}

	if p.target == "" || p.connectivity == nil {
		p.logger.Warn("network probe disabled: no probe target or connectivity monitor")
		return nil
	}

	probeCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("network probe plugin initialized",
		log.String("target", p.target),
		log.Duration("interval", p.interval))

	p.wg.Add(1)
	go p.probeLoop(probeCtx)

	return nil
}

// Shutdown stops the probe loop.
func (p *Plugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	return nil
}

func (p *Plugin) probeLoop(ctx context.Context) {
	defer p.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.initialBackoff
	bo.MaxInterval = p.interval
	bo.Reset()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		online := p.Probe(ctx)
		if ctx.Err() != nil {
			return
		}
		p.connectivity.Set(online)

		next := p.interval
		if online {
			bo.Reset()
		} else {
			next = bo.NextBackOff()
			p.logger.Debug("network probe failed",
				log.String("target", p.target),
				log.Duration("retry_in", next))
		}
		timer.Reset(next)
	}
}

// Probe issues one request to the target and reports whether any HTTP
// response came back. Status codes are not inspected: a gateway answering
// 5xx is reachable, and its rejections are handled per operation.
func (p *Plugin) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.target, nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return true
}

var _ tillsync.Plugin = (*Plugin)(nil)
