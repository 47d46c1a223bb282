package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	StoreDir         string `toml:"store_dir"`
	StoreBackend     string `toml:"store_backend"`
	GatewayURL       string `toml:"gateway_url"`
	AuthKey          string `toml:"auth_key"`
	TerminalID       string `toml:"terminal_id"`
	HTTPTimeout      string `toml:"http_timeout"`
	DebounceDelay    string `toml:"debounce_delay"`
	ProbeURL         string `toml:"probe_url"`
	ProbeInterval    string `toml:"probe_interval"`
	ListenAddr       string `toml:"listen_addr"`
	LogLevel         string `toml:"log_level"`
	LogJSON          *bool  `toml:"log_json"`
	IdempotencyKeys  *bool  `toml:"idempotency_keys"`
	OfflineMode      *bool  `toml:"offline_mode"`
	ReminderSchedule string `toml:"reminder_schedule"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.tillsync/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".tillsync", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("store-dir", fc.StoreDir, &cfg.StoreDir)
	s.setString("store-backend", fc.StoreBackend, &cfg.StoreBackend)
	s.setString("gateway-url", fc.GatewayURL, &cfg.GatewayURL)
	s.setString("auth-key", fc.AuthKey, &cfg.AuthKey)
	s.setString("terminal-id", fc.TerminalID, &cfg.TerminalID)
	s.setString("probe-url", fc.ProbeURL, &cfg.ProbeURL)
	s.setString("listen", fc.ListenAddr, &cfg.ListenAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("reminder", fc.ReminderSchedule, &cfg.ReminderSchedule)

	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("debounce", fc.DebounceDelay, &cfg.DebounceDelay); err != nil {
		return err
	}
	if err := s.setDuration("probe-interval", fc.ProbeInterval, &cfg.ProbeInterval); err != nil {
		return err
	}

	s.setBool("log-json", fc.LogJSON, &cfg.LogJSON)
	s.setBool("idempotency-keys", fc.IdempotencyKeys, &cfg.IdempotencyKeys)
	s.setBool("offline", fc.OfflineMode, &cfg.OfflineMode)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
