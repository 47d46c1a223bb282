// Package reminder periodically reports failed queue entries. Failed
// entries are never retried automatically, so without an operator nudge
// they can sit in the queue indefinitely.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bft-labs/tillsync/pkg/log"
	"github.com/bft-labs/tillsync/pkg/tillsync"
)

// DefaultSchedule checks every five minutes.
const DefaultSchedule = "@every 5m"

// Plugin counts failed entries on a cron schedule and emits a reminder
// event when any exist.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	schedule       string
	runImmediately bool

	// Runtime state
	logger tillsync.Logger
	queue  tillsync.QueueReader
	events tillsync.EventEmitter
	cron   *cron.Cron
	wg     sync.WaitGroup
}

// Config holds configuration options for the reminder plugin.
type Config struct {
	// Schedule is a standard cron expression or descriptor ("@hourly",
	// "@every 10m").
	// Default: "@every 5m"
	Schedule string

	// RunImmediately runs one check during Initialize.
	RunImmediately bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Schedule:       DefaultSchedule,
		RunImmediately: true,
	}
}

// New creates a reminder plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	return &Plugin{
		schedule:       cfg.Schedule,
		runImmediately: cfg.RunImmediately,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "reminder"
}

// Initialize parses the schedule and starts the cron runner.
func (p *Plugin) Initialize(ctx context.Context, cfg tillsync.PluginConfig) error {
	sched, err := cron.ParseStandard(p.schedule)
	if err != nil {
		return fmt.Errorf("reminder schedule %q: %w", p.schedule, err)
	}

	p.mu.Lock()
	p.logger = cfg.Logger
	p.queue = cfg.Queue
	p.events = cfg.Events
	p.mu.Unlock()

	if p.queue == nil {
		p.logger.Warn("failed-entry reminder disabled: no queue reader")
		return nil
	}

	if p.runImmediately {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.checkOnce(ctx)
		}()
	}

	c := cron.New()
	c.Schedule(sched, cron.FuncJob(func() { p.checkOnce(ctx) }))
	c.Start()

	p.mu.Lock()
	p.cron = c
	p.mu.Unlock()

	p.logger.Info("failed-entry reminder initialized", log.String("schedule", p.schedule))
	return nil
}

// Shutdown stops the cron runner and waits for a running check.
func (p *Plugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.wg.Wait()
	return nil
}

// checkOnce reports failed entries, if any. It returns the event it emitted
// and whether one was emitted.
func (p *Plugin) checkOnce(ctx context.Context) (tillsync.FailedReminderEvent, bool) {
	if ctx.Err() != nil {
		return tillsync.FailedReminderEvent{}, false
	}

	ops, err := p.queue.List(ctx)
	if err != nil {
		p.logger.Error("failed-entry reminder: list queue failed", log.Err(err))
		return tillsync.FailedReminderEvent{}, false
	}

	var ev tillsync.FailedReminderEvent
	for _, op := range ops {
		if op.Status != tillsync.StatusFailed {
			continue
		}
		if ev.Failed == 0 || op.CreatedAt.Before(ev.Oldest) {
			ev.Oldest = op.CreatedAt
		}
		ev.Failed++
	}
	if ev.Failed == 0 {
		return ev, false
	}

	p.logger.Warn("failed sales are waiting for operator action",
		log.Int("failed", ev.Failed),
		log.Time("oldest", ev.Oldest),
		log.Duration("age", time.Since(ev.Oldest).Round(time.Second)))
	if p.events != nil {
		p.events.OnFailedReminder(ev)
	}
	return ev, true
}

var _ tillsync.Plugin = (*Plugin)(nil)
