package app

import (
	"sync"
	"time"

	"github.com/bft-labs/tillsync/internal/ports"
	"github.com/bft-labs/tillsync/pkg/log"
)

// Monitor is the connectivity signal shared by the coordinator and the
// submit path. IsOnline is always the live value; subscribers receive
// debounced transitions.
//
// Debounce: the first change in a quiet period arms a timer for the
// configured delay. When it fires, the effective state at that moment is
// compared with the last delivered state and delivered if it differs. Flaps
// inside the window collapse, and the value the signal settles on is always
// delivered.
type Monitor struct {
	mu       sync.Mutex
	raw      bool
	forced   bool
	notified bool
	delay    time.Duration
	timer    *time.Timer
	stopped  bool
	subs     map[int]func(online bool)
	nextSub  int
	logger   ports.Logger

	// deliverMu keeps deliveries ordered when a subscriber is slow.
	deliverMu sync.Mutex
}

var _ ports.Connectivity = (*Monitor)(nil)

// MonitorOption configures a Monitor at construction.
type MonitorOption func(*Monitor)

// WithForcedOffline starts the monitor with the operator override set.
// Unlike SetForcedOffline it does not count as a transition.
func WithForcedOffline(forced bool) MonitorOption {
	return func(m *Monitor) { m.forced = forced }
}

// NewMonitor creates a monitor with an initial raw reading.
func NewMonitor(initial bool, delay time.Duration, logger ports.Logger, opts ...MonitorOption) *Monitor {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	m := &Monitor{
		raw:    initial,
		delay:  delay,
		subs:   make(map[int]func(bool)),
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.notified = m.effective()
	return m
}

// IsOnline reports the raw signal unless the operator forced offline mode.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.effective()
}

// Set records a reading from the platform signal source.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	changed := m.raw != online
	m.raw = online
	m.mu.Unlock()

	if changed {
		m.schedule()
	}
}

// SetForcedOffline toggles the operator override.
func (m *Monitor) SetForcedOffline(forced bool) {
	m.mu.Lock()
	changed := m.forced != forced
	m.forced = forced
	m.mu.Unlock()

	if changed {
		m.logger.Info("offline mode changed", log.Bool("forced_offline", forced))
		m.schedule()
	}
}

// ForcedOffline reports whether the operator override is active.
func (m *Monitor) ForcedOffline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forced
}

// Subscribe registers fn for debounced transitions. fn runs on the
// debounce timer goroutine (or the Set caller when the delay is zero)
// and must not block for long.
func (m *Monitor) Subscribe(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Stop cancels a pending debounce timer. Later changes are still readable
// through IsOnline but are no longer delivered.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Monitor) effective() bool {
	return m.raw && !m.forced
}

func (m *Monitor) schedule() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	if m.delay <= 0 {
		m.mu.Unlock()
		m.deliver()
		return
	}
	if m.timer == nil {
		m.timer = time.AfterFunc(m.delay, m.fire)
	}
	m.mu.Unlock()
}

func (m *Monitor) fire() {
	m.mu.Lock()
	m.timer = nil
	stopped := m.stopped
	m.mu.Unlock()

	if !stopped {
		m.deliver()
	}
}

func (m *Monitor) deliver() {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	current := m.effective()
	if current == m.notified {
		m.mu.Unlock()
		return
	}
	m.notified = current
	subs := make([]func(bool), 0, len(m.subs))
	for id := 0; id < m.nextSub; id++ {
		if fn, ok := m.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	m.mu.Unlock()

	m.logger.Info("connectivity changed", log.Bool("online", current))
	for _, fn := range subs {
		fn(current)
	}
}
