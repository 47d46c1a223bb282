package ports

// Connectivity reports whether the remote service is believed reachable.
// The value is read at call time and never cached by callers.
type Connectivity interface {
	IsOnline() bool
}
