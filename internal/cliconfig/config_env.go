package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (TILLSYNC_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("store-dir", os.Getenv("TILLSYNC_STORE_DIR"), &cfg.StoreDir)
	s.setString("store-backend", os.Getenv("TILLSYNC_STORE_BACKEND"), &cfg.StoreBackend)
	s.setString("gateway-url", os.Getenv("TILLSYNC_GATEWAY_URL"), &cfg.GatewayURL)
	s.setString("auth-key", os.Getenv("TILLSYNC_AUTH_KEY"), &cfg.AuthKey)
	s.setString("terminal-id", os.Getenv("TILLSYNC_TERMINAL_ID"), &cfg.TerminalID)
	s.setString("probe-url", os.Getenv("TILLSYNC_PROBE_URL"), &cfg.ProbeURL)
	s.setString("listen", os.Getenv("TILLSYNC_LISTEN_ADDR"), &cfg.ListenAddr)
	s.setString("log-level", os.Getenv("TILLSYNC_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("reminder", os.Getenv("TILLSYNC_REMINDER_SCHEDULE"), &cfg.ReminderSchedule)

	if err := s.setDuration("timeout", os.Getenv("TILLSYNC_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("debounce", os.Getenv("TILLSYNC_DEBOUNCE_DELAY"), &cfg.DebounceDelay); err != nil {
		return err
	}
	if err := s.setDuration("probe-interval", os.Getenv("TILLSYNC_PROBE_INTERVAL"), &cfg.ProbeInterval); err != nil {
		return err
	}

	s.setBoolFromString("log-json", os.Getenv("TILLSYNC_LOG_JSON"), &cfg.LogJSON)
	s.setBoolFromString("idempotency-keys", os.Getenv("TILLSYNC_IDEMPOTENCY_KEYS"), &cfg.IdempotencyKeys)
	s.setBoolFromString("offline", os.Getenv("TILLSYNC_OFFLINE_MODE"), &cfg.OfflineMode)

	return nil
}
