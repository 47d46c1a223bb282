package app

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/tillsync/internal/domain"
	"github.com/bft-labs/tillsync/internal/ports"
	"github.com/bft-labs/tillsync/pkg/log"
)

// ShutdownTimeout bounds how long Stop waits for an in-flight drain cycle
// and plugin goroutines.
const ShutdownTimeout = 30 * time.Second

// State is the lifecycle state of a tillsync instance.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// allowedTransitions lists the legal next states for each state.
var allowedTransitions = map[State][]State{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateStopping, StateCrashed},
	StateRunning:  {StateStopping, StateCrashed},
	StateStopping: {StateStopped, StateCrashed},
	StateCrashed:  {StateStarting},
}

// Transition records the most recent state change.
type Transition struct {
	State  State
	Since  time.Time
	Reason string
}

// Lifecycle manages the state machine and background workers of an instance.
type Lifecycle struct {
	mu           sync.RWMutex
	state        State
	last         Transition
	now          func() time.Time
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	logger       ports.Logger
	eventEmitter EventEmitter
}

// EventEmitter is called when lifecycle state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// NewLifecycle creates a new lifecycle manager.
func NewLifecycle(logger ports.Logger, emitter EventEmitter) *Lifecycle {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	l := &Lifecycle{
		state:        StateStopped,
		now:          time.Now,
		logger:       logger,
		eventEmitter: emitter,
	}
	l.last = Transition{State: StateStopped, Since: l.now(), Reason: "created"}
	return l
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// LastTransition returns the current state with the time it was entered
// and the reason given for it.
func (l *Lifecycle) LastTransition() Transition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

// TransitionTo moves to newState if allowed. Leaving Stopped or Crashed
// illegally yields ErrNotRunning; any other illegal move yields ErrAlreadyRunning.
func (l *Lifecycle) TransitionTo(newState State, reason string) error {
	l.mu.Lock()
	oldState := l.state

	if !canTransition(oldState, newState) {
		l.mu.Unlock()
		if oldState == StateStopped || oldState == StateCrashed {
			return domain.ErrNotRunning
		}
		return domain.ErrAlreadyRunning
	}

	l.state = newState
	l.last = Transition{State: newState, Since: l.now(), Reason: reason}
	l.mu.Unlock()

	// Emit outside the lock so handlers may query State().
	if l.eventEmitter != nil {
		l.eventEmitter.OnStateChange(oldState, newState, reason)
	}

	fields := []log.Field{
		log.String("from", oldState.String()),
		log.String("to", newState.String()),
		log.String("reason", reason),
	}
	if newState == StateCrashed {
		l.logger.Error("tillsync crashed", fields...)
	} else {
		l.logger.Debug("lifecycle", fields...)
	}
	return nil
}

func canTransition(from, to State) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanStart returns true if Start() can be called.
func (l *Lifecycle) CanStart() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateStopped || l.state == StateCrashed
}

// CanStop returns true if Stop() can be called.
func (l *Lifecycle) CanStop() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateRunning || l.state == StateStarting
}

// SetCancel stores the cancel function of the run context.
func (l *Lifecycle) SetCancel(cancel context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancel = cancel
}

// Cancel cancels the run context, if any.
func (l *Lifecycle) Cancel() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Go runs fn on a tracked worker goroutine.
func (l *Lifecycle) Go(fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn()
	}()
}

// WaitWithTimeout waits for all workers to finish.
// Returns ErrShutdownTimeout if the timeout expires first.
func (l *Lifecycle) WaitWithTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		l.logger.Warn("shutdown timeout, abandoning workers",
			log.Duration("timeout", timeout),
		)
		return domain.ErrShutdownTimeout
	}
}
