// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"math"

	"github.com/ManuGH/xrcap/internal/validate"
)

var (
	knownEyes  = []string{"left", "right"}
	knownNodes = []string{"head", "left_controller", "right_controller"}
	exporters  = []string{"grpc", "http"}
)

// Validate checks cfg and returns all problems at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Directory("dataDir", cfg.DataDir, false)
	v.Directory("capture.recordingsDir", cfg.Capture.RecordingsDir, false)
	v.NotEmpty("device", cfg.Device)
	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("logLevel", err.Error(), cfg.LogLevel)
	}

	v.FloatRange("capture.rateHz", cfg.Capture.RateHz, 0, 1000)
	v.FloatRange("capture.tickHz", cfg.Capture.TickHz, 1, 1000)
	if cfg.Capture.RateHz > cfg.Capture.TickHz {
		v.AddError("capture.rateHz",
			fmt.Sprintf("capture rate %g exceeds tick rate %g", cfg.Capture.RateHz, cfg.Capture.TickHz),
			cfg.Capture.RateHz)
	}

	if cfg.Depth.Enabled {
		v.Range("depth.poolMaxSize", cfg.Depth.PoolMaxSize, 2, 256)
		v.Positive("depth.width", cfg.Depth.Width)
		v.Positive("depth.height", cfg.Depth.Height)
		if cfg.Depth.ReadbackDrainTimeout <= 0 {
			v.AddError("depth.readbackDrainTimeout", "must be positive", cfg.Depth.ReadbackDrainTimeout)
		}
		if cfg.Depth.PermissionPollInterval <= 0 {
			v.AddError("depth.permissionPollInterval", "must be positive", cfg.Depth.PermissionPollInterval)
		}
	}

	if cfg.Camera.Enabled {
		for _, eye := range cfg.Camera.Eyes {
			v.OneOf("camera.eyes", eye, knownEyes)
		}
		v.Unique("camera.eyes", cfg.Camera.Eyes)
		v.Positive("camera.width", cfg.Camera.Width)
		v.Positive("camera.height", cfg.Camera.Height)
		if cfg.Camera.Width%2 != 0 || cfg.Camera.Height%2 != 0 {
			v.AddError("camera.width", "YUV_420_888 needs even dimensions",
				fmt.Sprintf("%dx%d", cfg.Camera.Width, cfg.Camera.Height))
		}
	}

	names := make([]string, 0, len(cfg.Pose.Nodes))
	for i, n := range cfg.Pose.Nodes {
		field := fmt.Sprintf("pose.nodes[%d]", i)
		v.OneOf(field+".name", n.Name, knownNodes)
		names = append(names, n.Name)
		v.Custom(field+".rotation", n.Rotation, checkRotation)
	}
	v.Unique("pose.nodes", names)

	v.ListenAddr("api.listenAddr", cfg.API.ListenAddr)
	v.NonNegative("api.rateLimit", cfg.API.RateLimit)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, exporters)
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	if cfg.Journal.Enabled {
		v.NotEmpty("journal.path", cfg.Journal.Path)
	}

	return v.Err()
}

// checkRotation accepts an unset rotation or a non-zero quaternion.
func checkRotation(value any) error {
	q, _ := value.([]float64)
	switch len(q) {
	case 0:
		return nil
	case 4:
		if math.Sqrt(q[0]*q[0]+q[1]*q[1]+q[2]*q[2]+q[3]*q[3]) < 1e-9 {
			return errors.New("quaternion must not be zero")
		}
		return nil
	default:
		return fmt.Errorf("want 4 values, got %d", len(q))
	}
}
