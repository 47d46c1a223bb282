package tillsync

import (
	"time"

	"github.com/bft-labs/tillsync/internal/app"
)

// State is the lifecycle state of a Tillsync instance.
type State int

const (
	// StateStopped is the initial state and the state after a clean Stop.
	StateStopped State = iota

	// StateStarting means Start is opening the store and initializing plugins.
	StateStarting

	// StateRunning means the queue accepts work and drains on reconnect.
	StateRunning

	// StateStopping means Stop is waiting for the in-flight drain.
	StateStopping

	// StateCrashed means startup failed or shutdown timed out.
	// Start may be called again.
	StateCrashed
)

// StateInfo is the current state together with when and why it was entered.
type StateInfo struct {
	State  State
	Since  time.Time
	Reason string
}

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

func convertState(s app.State) State {
	switch s {
	case app.StateStopped:
		return StateStopped
	case app.StateStarting:
		return StateStarting
	case app.StateRunning:
		return StateRunning
	case app.StateStopping:
		return StateStopping
	case app.StateCrashed:
		return StateCrashed
	default:
		return StateStopped
	}
}
