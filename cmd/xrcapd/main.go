// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// xrcapd runs the capture core behind the local control API.
//
// Usage:
//
//	xrcapd [--config config.yaml]
//	xrcapd --check-config --config config.yaml
//	xrcapd healthcheck [--mode ready|live] [--addr 127.0.0.1:8089]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ManuGH/xrcap/internal/config"
	"github.com/ManuGH/xrcap/internal/daemon"
	"github.com/ManuGH/xrcap/internal/health"
	xlog "github.com/ManuGH/xrcap/internal/log"
	"github.com/ManuGH/xrcap/internal/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(runHealthcheckCLI(os.Args[2:]))
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	checkConfig := flag.Bool("check-config", false, "validate the configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	xlog.Configure(xlog.Config{
		Level:   "info",
		Service: "xrcapd",
		Version: version.Version,
	})
	logger := xlog.WithComponent("main")

	path := resolveConfigPath(*configPath)
	loader := config.NewLoader(path, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		if *checkConfig {
			fmt.Fprintf(os.Stderr, "Configuration error in %s:\n  %v\n", displayPath(path), err)
			os.Exit(1)
		}
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str(xlog.FieldPath, path).
			Msg("failed to load configuration")
	}
	if *checkConfig {
		fmt.Printf("✓ %s is valid\n", displayPath(path))
		os.Exit(0)
	}

	xlog.Configure(xlog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})
	logger = xlog.WithComponent("main")

	if path != "" {
		logger.Info().Str("event", "config.loaded").Str("source", "file").Str(xlog.FieldPath, path).Msg("loaded configuration from file")
	} else {
		logger.Info().Str("event", "config.loaded").Str("source", "env+defaults").Msg("loaded configuration from environment and defaults")
	}

	if err := health.PerformStartupChecks(cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("startup checks failed, verify configuration and permissions")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.API.ListenAddr).
		Str("recordings_dir", cfg.Capture.RecordingsDir).
		Msg("starting xrcapd")

	holder := config.NewConfigHolder(cfg, loader, path)
	app, err := daemon.NewApp(ctx, holder)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "daemon.init_failed").Msg("failed to initialize daemon")
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Str("event", "daemon.failed").Msg("daemon exited with error")
		os.Exit(1)
	}
	logger.Info().Str("event", "shutdown.complete").Msg("shutdown complete")
}

// resolveConfigPath prefers an explicit path, then ${XRCAP_DATA}/config.yaml
// when it exists. Empty means env and defaults only.
func resolveConfigPath(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	dataDir := strings.TrimSpace(config.ParseString(config.EnvDataDir, config.DefaultDataDir))
	if dataDir == "" {
		return ""
	}
	auto := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(auto); err == nil {
		return auto
	}
	return ""
}

func displayPath(path string) string {
	if path == "" {
		return "environment configuration"
	}
	return path
}
