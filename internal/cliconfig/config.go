package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bft-labs/tillsync/pkg/log"
)

// Defaults for the daemon.
const (
	DefaultListenAddr       = "127.0.0.1:7420"
	DefaultStoreBackend     = "file"
	DefaultReminderSchedule = "@every 5m"
)

// Config holds CLI configuration for tillsync.
type Config struct {
	StoreDir     string
	StoreBackend string

	GatewayURL string
	AuthKey    string
	TerminalID string

	HTTPTimeout   time.Duration
	DebounceDelay time.Duration

	// ProbeURL is polled by the connectivity probe; defaults to GatewayURL.
	ProbeURL      string
	ProbeInterval time.Duration

	ListenAddr string
	LogLevel   string
	LogJSON    bool

	IdempotencyKeys bool
	OfflineMode     bool

	// ReminderSchedule is a cron spec for the failed-entry reminder.
	// Empty disables the reminder.
	ReminderSchedule string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		StoreDir:         defaultStoreDir(),
		StoreBackend:     DefaultStoreBackend,
		HTTPTimeout:      15 * time.Second,
		DebounceDelay:    500 * time.Millisecond,
		ProbeInterval:    15 * time.Second,
		ListenAddr:       DefaultListenAddr,
		LogLevel:         "info",
		ReminderSchedule: DefaultReminderSchedule,
	}
}

func defaultStoreDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".tillsync", "queue")
	}
	return ""
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.StoreDir == "" {
		return fmt.Errorf("store-dir is required")
	}
	switch c.StoreBackend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("store-backend must be file or sqlite, got %q", c.StoreBackend)
	}

	if c.GatewayURL == "" {
		return fmt.Errorf("gateway-url is required")
	}
	c.GatewayURL = strings.TrimRight(c.GatewayURL, "/")
	if c.ProbeURL == "" {
		c.ProbeURL = c.GatewayURL
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.DebounceDelay < 0 {
		return fmt.Errorf("debounce must not be negative")
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("probe interval must be positive")
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.ReminderSchedule != "" {
		if _, err := cron.ParseStandard(c.ReminderSchedule); err != nil {
			return fmt.Errorf("reminder schedule: %w", err)
		}
	}

	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
