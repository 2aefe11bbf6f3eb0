// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ManuGH/refcap/internal/api"
	"github.com/ManuGH/refcap/internal/capture"
	"github.com/ManuGH/refcap/internal/config"
	"github.com/ManuGH/refcap/internal/daemon"
	"github.com/ManuGH/refcap/internal/device"
	"github.com/ManuGH/refcap/internal/history"
	"github.com/ManuGH/refcap/internal/log"
	"github.com/ManuGH/refcap/internal/pipeline/bus"
	"github.com/ManuGH/refcap/internal/telemetry"
	"github.com/ManuGH/refcap/internal/validation"
	"github.com/ManuGH/refcap/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "storage":
			os.Exit(runStorageCLI(os.Args[2:]))
		}
	}

	// Handle command-line flags
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// Configure logger with safe defaults until config is loaded
	log.Configure(log.Config{
		Level:   "info",
		Service: "refcap",
		Version: version.Version,
	})

	logger := log.WithComponent("daemon")

	// Create a context that listens for the interrupt signal from the OS
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Determine config path:
	// - Explicit via --config
	// - Otherwise auto-load ${REFCAP_DATA_DIR}/config.yaml if it exists (so UI-saved config persists)
	explicitConfigPath := strings.TrimSpace(*configPath)
	effectiveConfigPath := explicitConfigPath
	if effectiveConfigPath == "" {
		if dataDir := strings.TrimSpace(os.Getenv(config.EnvDataDir)); dataDir != "" {
			autoPath := filepath.Join(dataDir, "config.yaml")
			if _, err := os.Stat(autoPath); err == nil {
				effectiveConfigPath = autoPath
			}
		}
	}

	loader := config.NewLoader(effectiveConfigPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		// Log failure using default logger
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	// Configure runs once, so the resolved level is applied explicitly.
	if err := log.SetLevel(cfg.Log.Level); err != nil {
		logger.Warn().
			Err(err).
			Str("level", cfg.Log.Level).
			Msg("invalid log level in configuration, keeping info")
	}

	// Log config source
	if explicitConfigPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", explicitConfigPath).
			Msg("loaded configuration from file")
	} else if effectiveConfigPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file(auto)").
			Str("path", effectiveConfigPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	// -------------------------------------------------------------------------
	// Pre-flight Checks (Fail Fast)
	// -------------------------------------------------------------------------
	if err := validation.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("Startup checks failed. Please verify configuration and permissions.")
	}
	// -------------------------------------------------------------------------

	serverCfg := config.ParseServerConfig(cfg)

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", serverCfg.ListenAddr).
		Msg("starting refcapd")

	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)
	logger.Info().Msgf("→ Device: %s (format %s)", cfg.Capture.Device, cfg.Capture.FormatCode)
	logger.Info().Msgf("→ Encoder: %s (preset %s, crf %d)", cfg.Encoder.Bin, cfg.Encoder.Preset, cfg.Encoder.CRF)
	logger.Info().Msgf("→ Output dir: %s", cfg.Capture.OutputDir)
	logger.Info().Msgf("→ History DB: %s", cfg.History.DBPath)
	if cfg.API.Token != "" {
		logger.Info().Msg("→ API token configured")
	} else {
		logger.Warn().Msg("→ API token NOT configured - mutating endpoints accept any caller")
	}

	// Persist the effective configuration so operators can inspect what
	// ENV plus file actually resolved to.
	if err := config.SaveEffective(cfg, filepath.Join(cfg.DataDir, "config.effective.yaml")); err != nil {
		logger.Warn().
			Err(err).
			Str("event", "config.snapshot_failed").
			Msg("failed to write effective config snapshot")
	}

	// Config holder for hot reload (file watcher + SIGHUP)
	cfgHolder := config.NewHolder(cfg, loader, effectiveConfigPath)

	// Telemetry is best-effort: a missing collector must not block captures.
	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "refcap",
		ServiceVersion: version.Version,
		Environment:    config.ParseString("REFCAP_ENVIRONMENT", "lab"),
		Protocol:       cfg.Telemetry.Protocol,
		Endpoint:       cfg.Telemetry.Endpoint,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		logger.Warn().
			Err(err).
			Str("event", "telemetry.init_failed").
			Msg("telemetry initialization failed, continuing without tracing")
		tp = nil
	}

	store, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "history.open_failed").
			Str("path", cfg.History.DBPath).
			Msg("failed to open history store")
	}

	eventBus := bus.NewMemoryBus()
	captureMgr := capture.NewManager(&cfg, eventBus, store)
	prober := device.NewProber(cfg.Encoder.Bin, cfg.Capture.Device, cfg.Capture.FormatCode, cfg.Probe.Timeout)

	// Initial device probe before serving (enabled by default). A bad
	// verdict is logged, not fatal: the device may come online later.
	if config.ParseBool("REFCAP_INITIAL_PROBE", true) {
		res := prober.Probe(ctx)
		if res.OK() {
			logger.Info().
				Str("device", cfg.Capture.Device).
				Str("state", string(res.State)).
				Msg("initial device probe passed")
		} else {
			logger.Warn().
				Str("device", cfg.Capture.Device).
				Str("state", string(res.State)).
				Str("reason", res.Reason).
				Msg("initial device probe failed")
			logger.Warn().Msg("→ Captures will fail until the device becomes available")
		}
	} else {
		logger.Warn().Msg("Initial device probe is disabled (REFCAP_INITIAL_PROBE=false)")
	}

	srv, err := api.NewServer(api.Deps{
		Manager: captureMgr,
		Prober:  prober,
		Runs:    store,
		Config:  &cfg,
		Version: version.Version,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "api.setup_failed").
			Msg("failed to build API server")
	}

	mgr, err := daemon.NewManager(serverCfg, daemon.Deps{
		Logger:  logger,
		Handler: srv.Handler(),
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "manager.creation.failed").
			Msg("failed to create daemon manager")
	}

	// Hooks run LIFO: the capture manager stops first so the encoder
	// releases the device before stores and exporters go away.
	if tp != nil {
		mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	}
	mgr.RegisterShutdownHook("history-store", func(context.Context) error {
		return store.Close()
	})
	mgr.RegisterShutdownHook("capture-manager", captureMgr.Shutdown)

	// Start daemon app (blocks until shutdown)
	app := daemon.NewApp(logger, mgr, cfgHolder)
	if err := app.Run(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "manager.failed").
			Msg("daemon app failed")
	}

	logger.Info().Msg("server exiting")
}
