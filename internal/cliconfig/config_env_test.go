package cliconfig

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"TILLSYNC_STORE_DIR":         "/env/queue",
				"TILLSYNC_STORE_BACKEND":     "sqlite",
				"TILLSYNC_GATEWAY_URL":       "https://env.example.com",
				"TILLSYNC_AUTH_KEY":          "env-secret",
				"TILLSYNC_TERMINAL_ID":       "env-till",
				"TILLSYNC_HTTP_TIMEOUT":      "20s",
				"TILLSYNC_DEBOUNCE_DELAY":    "2s",
				"TILLSYNC_PROBE_URL":         "https://env.example.com/ping",
				"TILLSYNC_PROBE_INTERVAL":    "45s",
				"TILLSYNC_LISTEN_ADDR":       ":7000",
				"TILLSYNC_LOG_LEVEL":         "warn",
				"TILLSYNC_LOG_JSON":          "true",
				"TILLSYNC_IDEMPOTENCY_KEYS":  "1",
				"TILLSYNC_OFFLINE_MODE":      "true",
				"TILLSYNC_REMINDER_SCHEDULE": "@daily",
			},
			changed: map[string]bool{},
			expected: Config{
				StoreDir:         "/env/queue",
				StoreBackend:     "sqlite",
				GatewayURL:       "https://env.example.com",
				AuthKey:          "env-secret",
				TerminalID:       "env-till",
				HTTPTimeout:      20 * time.Second,
				DebounceDelay:    2 * time.Second,
				ProbeURL:         "https://env.example.com/ping",
				ProbeInterval:    45 * time.Second,
				ListenAddr:       ":7000",
				LogLevel:         "warn",
				LogJSON:          true,
				IdempotencyKeys:  true,
				OfflineMode:      true,
				ReminderSchedule: "@daily",
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"TILLSYNC_GATEWAY_URL": "https://env.example.com",
				"TILLSYNC_TERMINAL_ID": "env-till",
			},
			changed:  map[string]bool{"gateway-url": true},
			initial:  Config{GatewayURL: "https://flag.example.com"},
			expected: Config{GatewayURL: "https://flag.example.com", TerminalID: "env-till"},
		},
		{
			name:    "returns error for invalid duration",
			envVars: map[string]string{"TILLSYNC_HTTP_TIMEOUT": "not-a-duration"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:     "handles bool 'false' as false",
			envVars:  map[string]string{"TILLSYNC_OFFLINE_MODE": "false"},
			changed:  map[string]bool{},
			initial:  Config{OfflineMode: true},
			expected: Config{OfflineMode: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)

			if tt.wantErr {
				if err == nil {
					t.Error("ApplyEnvConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyEnvConfig() unexpected error: %v", err)
			}
			if cfg != tt.expected {
				t.Errorf("config = %+v\nwant %+v", cfg, tt.expected)
			}
		})
	}
}

// Integration test: precedence order (CLI > Env > File)
func TestConfigPrecedence(t *testing.T) {
	trueVal := true

	fileConf := FileConfig{
		GatewayURL:  "https://file.example.com",
		TerminalID:  "file-till",
		StoreDir:    "/file/queue",
		OfflineMode: &trueVal,
	}

	t.Setenv("TILLSYNC_GATEWAY_URL", "https://env.example.com")
	t.Setenv("TILLSYNC_TERMINAL_ID", "env-till")
	t.Setenv("TILLSYNC_LISTEN_ADDR", ":7777")

	// Simulate CLI flags
	changed := map[string]bool{
		"gateway-url": true,
	}

	cfg := Config{
		GatewayURL: "https://cli.example.com",
	}

	if err := ApplyFileConfig(&cfg, fileConf, changed); err != nil {
		t.Fatalf("ApplyFileConfig failed: %v", err)
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		t.Fatalf("ApplyEnvConfig failed: %v", err)
	}

	if cfg.GatewayURL != "https://cli.example.com" {
		t.Errorf("GatewayURL = %v (CLI should win)", cfg.GatewayURL)
	}
	if cfg.TerminalID != "env-till" {
		t.Errorf("TerminalID = %v, want env-till (env should override file)", cfg.TerminalID)
	}
	if cfg.ListenAddr != ":7777" {
		t.Errorf("ListenAddr = %v, want :7777 (env should set)", cfg.ListenAddr)
	}
	if cfg.StoreDir != "/file/queue" || !cfg.OfflineMode {
		t.Errorf("file values lost: %+v", cfg)
	}
}
