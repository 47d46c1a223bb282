package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/tillsync/internal/api"
	"github.com/bft-labs/tillsync/internal/cliconfig"
	"github.com/bft-labs/tillsync/pkg/log"
	"github.com/bft-labs/tillsync/pkg/tillsync"
	"github.com/bft-labs/tillsync/plugins/configwatcher"
	"github.com/bft-labs/tillsync/plugins/netprobe"
	"github.com/bft-labs/tillsync/plugins/reminder"
)

func newRunCommand() *cobra.Command {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the queue daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if err := loadConfig(&cfg, cfgFile, changed); err != nil {
				return err
			}
			return runDaemon(cfg, cfgFile)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.tillsync/config.toml)")
	f.StringVar(&cfg.StoreDir, "store-dir", cfg.StoreDir, "queue store directory")
	f.StringVar(&cfg.StoreBackend, "store-backend", cfg.StoreBackend, "queue store backend (file or sqlite)")
	f.StringVar(&cfg.GatewayURL, "gateway-url", cfg.GatewayURL, "base URL of the POS backend")
	f.StringVar(&cfg.AuthKey, "auth-key", cfg.AuthKey, "bearer token for the POS backend")
	f.StringVar(&cfg.TerminalID, "terminal-id", cfg.TerminalID, "terminal identity (generated and persisted when empty)")
	f.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout for backend requests")
	f.DurationVar(&cfg.DebounceDelay, "debounce", cfg.DebounceDelay, "connectivity debounce window")
	f.StringVar(&cfg.ProbeURL, "probe-url", cfg.ProbeURL, "connectivity probe URL (defaults to gateway-url)")
	f.DurationVar(&cfg.ProbeInterval, "probe-interval", cfg.ProbeInterval, "connectivity probe interval while online")
	f.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "operator API listen address")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	f.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "emit JSON log lines")
	f.BoolVar(&cfg.IdempotencyKeys, "idempotency-keys", cfg.IdempotencyKeys, "send Idempotency-Key headers on replay")
	f.BoolVar(&cfg.OfflineMode, "offline", cfg.OfflineMode, "start in forced offline mode")
	f.StringVar(&cfg.ReminderSchedule, "reminder", cfg.ReminderSchedule, "cron schedule for failed-entry reminders (empty disables)")

	return cmd
}

// loadConfig applies file, then environment, on top of flag values.
// Flags the user set explicitly win over both.
func loadConfig(cfg *cliconfig.Config, cfgFile string, changed map[string]bool) error {
	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	return cliconfig.LoadTerminalID(cfg)
}

func runDaemon(cfg cliconfig.Config, cfgFile string) error {
	logger := log.NewZerologAdapter(log.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})

	logger.Info("configuration",
		log.String("store_dir", cfg.StoreDir),
		log.String("store_backend", cfg.StoreBackend),
		log.String("gateway_url", cfg.GatewayURL),
		log.String("terminal_id", cfg.TerminalID),
		log.Bool("auth_key_set", cfg.AuthKey != ""),
		log.String("listen", cfg.ListenAddr),
		log.Bool("offline_mode", cfg.OfflineMode))

	opts := []tillsync.Option{
		tillsync.WithLogger(logger),
		netprobe.WithNetProbe(netprobe.Config{
			URL:      cfg.ProbeURL,
			Interval: cfg.ProbeInterval,
			Timeout:  cfg.HTTPTimeout,
		}),
		configwatcher.WithConfigWatcher(configwatcher.Config{Path: cfgFile}),
	}
	if cfg.ReminderSchedule != "" {
		opts = append(opts, reminder.WithReminder(reminder.Config{
			Schedule:       cfg.ReminderSchedule,
			RunImmediately: true,
		}))
	}

	ts, err := tillsync.New(tillsync.Config{
		StoreDir:        cfg.StoreDir,
		StoreBackend:    cfg.StoreBackend,
		GatewayURL:      cfg.GatewayURL,
		AuthKey:         cfg.AuthKey,
		TerminalID:      cfg.TerminalID,
		HTTPTimeout:     cfg.HTTPTimeout,
		DebounceDelay:   cfg.DebounceDelay,
		StartOffline:    true, // the probe reports the first reading immediately
		OfflineMode:     cfg.OfflineMode,
		IdempotencyKeys: cfg.IdempotencyKeys,
	}, opts...)
	if err != nil {
		return fmt.Errorf("create tillsync: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := ts.Start(ctx); err != nil {
		return fmt.Errorf("start tillsync: %w", err)
	}

	srv := api.NewHTTPServer(cfg.ListenAddr, ts.Handler())
	srvErr := make(chan error, 1)
	go func() {
		logger.Info("operator API listening", log.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	crashed := make(chan tillsync.StateInfo, 1)
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if info := ts.StatusInfo(); info.State == tillsync.StateCrashed {
					crashed <- info
					return
				}
			}
		}
	}()

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("received signal, stopping", log.String("signal", sig.String()))
	case err := <-srvErr:
		runErr = fmt.Errorf("operator API: %w", err)
	case info := <-crashed:
		runErr = fmt.Errorf("tillsync crashed: %s", info.Reason)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("operator API shutdown", log.Err(err))
	}

	if err := ts.Stop(); err != nil && !errors.Is(err, tillsync.ErrNotRunning) {
		return errors.Join(runErr, fmt.Errorf("stop tillsync: %w", err))
	}
	return runErr
}
