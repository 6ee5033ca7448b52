// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"fmt"

	"github.com/ManuGH/xrcap/internal/config"
	"github.com/ManuGH/xrcap/internal/log"
)

// PerformStartupChecks validates the environment before the daemon starts
// capturing.
func PerformStartupChecks(cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Str("event", "startup.checks_begin").Msg("running pre-flight startup checks")

	if err := checkWritableDir(cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := checkWritableDir(cfg.Capture.RecordingsDir); err != nil {
		return fmt.Errorf("recordings directory check failed: %w", err)
	}
	if !cfg.Depth.Enabled && !cfg.Camera.Enabled && len(cfg.Pose.Nodes) == 0 {
		return fmt.Errorf("no capture streams enabled")
	}

	logger.Info().
		Str("event", "startup.checks_passed").
		Str(log.FieldPath, cfg.Capture.RecordingsDir).
		Msg("all startup checks passed")
	return nil
}
