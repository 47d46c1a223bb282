package reminder

import "github.com/bft-labs/tillsync/pkg/tillsync"

// WithReminder returns a tillsync Option that enables the failed-entry
// reminder.
//
// Usage:
//
//	ts, err := tillsync.New(cfg,
//	    reminder.WithReminder(reminder.Config{Schedule: "@hourly"}),
//	)
func WithReminder(cfg Config) tillsync.Option {
	return tillsync.WithPlugin(New(cfg))
}

// WithDefaultReminder checks every five minutes, starting at Initialize.
func WithDefaultReminder() tillsync.Option {
	return WithReminder(DefaultConfig())
}
