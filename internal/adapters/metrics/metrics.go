// Package metrics exposes queue and sync activity as prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/tillsync/internal/domain"
	"github.com/bft-labs/tillsync/internal/ports"
)

const namespace = "tillsync"

// Collector implements ports.SyncObserver. A nil *Collector is a valid no-op.
type Collector struct {
	registry *prometheus.Registry

	synced      *prometheus.CounterVec
	failed      *prometheus.CounterVec
	drains      *prometheus.CounterVec
	drainTime   prometheus.Histogram
	online      prometheus.Gauge
	transitions prometheus.Counter
}

var _ ports.SyncObserver = (*Collector)(nil)

// New registers the tillsync metrics on a private registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		synced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_synced_total",
			Help:      "Queued operations submitted successfully and removed from the queue.",
		}, []string{"kind"}),
		failed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_failed_total",
			Help:      "Queued operations parked as failed.",
		}, []string{"kind"}),
		drains: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_requests_total",
			Help:      "Drain requests by outcome (ran, offline, busy).",
		}, []string{"outcome"}),
		drainTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_duration_seconds",
			Help:      "Wall time of drain cycles that ran.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		online: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online",
			Help:      "1 when the terminal believes the remote service is reachable.",
		}),
		transitions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connectivity_transitions_total",
			Help:      "Debounced connectivity changes delivered to subscribers.",
		}),
	}
}

// RegisterQueueStats exposes queue depth by status, computed at scrape time.
func (c *Collector) RegisterQueueStats(stats func() domain.Stats) {
	if c == nil {
		return
	}
	factory := promauto.With(c.registry)
	for status, pick := range map[domain.Status]func(domain.Stats) int{
		domain.StatusPending: func(s domain.Stats) int { return s.Pending },
		domain.StatusSyncing: func(s domain.Stats) int { return s.Syncing },
		domain.StatusFailed:  func(s domain.Stats) int { return s.Failed },
	} {
		pick := pick
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "queue_operations",
			Help:        "Entries currently in the durable queue.",
			ConstLabels: prometheus.Labels{"status": string(status)},
		}, func() float64 { return float64(pick(stats())) })
	}
}

func (c *Collector) SyncSucceeded(op domain.QueuedOperation, _ domain.SaleRecord) {
	if c == nil {
		return
	}
	c.synced.WithLabelValues(string(op.Kind())).Inc()
}

func (c *Collector) SyncFailed(op domain.QueuedOperation, _ string) {
	if c == nil {
		return
	}
	c.failed.WithLabelValues(string(op.Kind())).Inc()
}

func (c *Collector) DrainFinished(result domain.DrainResult) {
	if c == nil {
		return
	}
	if !result.Ran() {
		c.drains.WithLabelValues(string(result.Skipped)).Inc()
		return
	}
	c.drains.WithLabelValues("ran").Inc()
	c.drainTime.Observe(result.Duration.Seconds())
}

// SetOnline records a debounced connectivity change.
func (c *Collector) SetOnline(online bool) {
	if c == nil {
		return
	}
	c.transitions.Inc()
	c.ObserveOnline(online)
}

// ObserveOnline sets the online gauge without counting a transition.
func (c *Collector) ObserveOnline(online bool) {
	if c == nil {
		return
	}
	if online {
		c.online.Set(1)
	} else {
		c.online.Set(0)
	}
}

// Handler serves the registry in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}
