// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultDataDir                = "/var/lib/xrcap"
	DefaultDevice                 = "sim"
	DefaultCaptureRateHz          = 3.0
	DefaultTickHz                 = 72.0
	DefaultPoolMaxSize            = 8
	DefaultReadbackDrainTimeout   = 2 * time.Second
	DefaultPermissionPollInterval = time.Second
	DefaultDepthSize              = 320
	DefaultCameraWidth            = 640
	DefaultCameraHeight           = 480
	DefaultListenAddr             = "127.0.0.1:8089"
	DefaultAPIRateLimit           = 120
	DefaultShutdownTimeout        = 10 * time.Second
	DefaultOTelExporter           = "grpc"
	DefaultOTelEndpoint           = "localhost:4317"
)

// Loader handles configuration loading with precedence ENV > file > defaults.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. An empty configPath means
// defaults and environment only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseList(key, defaultVal)
}

// Load loads, merges and validates the configuration.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Capture.RecordingsDir == "" {
		cfg.Capture.RecordingsDir = filepath.Join(cfg.DataDir, "recordings")
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = filepath.Join(cfg.DataDir, "journal.db")
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:    DefaultDataDir,
		Device:     DefaultDevice,
		LogLevel:   "info",
		LogService: "xrcapd",
		Capture: CaptureConfig{
			RateHz: DefaultCaptureRateHz,
			TickHz: DefaultTickHz,
		},
		Depth: DepthConfig{
			Enabled:                true,
			PoolMaxSize:            DefaultPoolMaxSize,
			ReadbackDrainTimeout:   DefaultReadbackDrainTimeout,
			PermissionPollInterval: DefaultPermissionPollInterval,
			Width:                  DefaultDepthSize,
			Height:                 DefaultDepthSize,
		},
		Camera: CameraConfig{
			Enabled: true,
			Eyes:    []string{"left", "right"},
			Width:   DefaultCameraWidth,
			Height:  DefaultCameraHeight,
		},
		Pose: PoseConfig{
			Nodes: []PoseNodeConfig{
				{Name: "head", Gated: true},
				{Name: "left_controller"},
				{Name: "right_controller"},
			},
		},
		API: APIConfig{
			ListenAddr:      DefaultListenAddr,
			RateLimit:       DefaultAPIRateLimit,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Telemetry: TelemetryConfig{
			Exporter:     DefaultOTelExporter,
			Endpoint:     DefaultOTelEndpoint,
			SamplingRate: 1.0,
		},
		Journal: JournalConfig{Enabled: true},
	}
}

// loadFile parses a YAML file strictly: unknown fields, multiple documents
// and trailing content are errors.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFileConfig(dst *AppConfig, src *FileConfig) error {
	setString(&dst.DataDir, os.ExpandEnv(src.DataDir))
	setString(&dst.Device, src.Device)
	setString(&dst.LogLevel, src.LogLevel)
	setString(&dst.LogService, src.LogService)

	if c := src.Capture; c != nil {
		setPtr(&dst.Capture.RateHz, c.RateHz)
		setPtr(&dst.Capture.TickHz, c.TickHz)
		setString(&dst.Capture.RecordingsDir, os.ExpandEnv(c.RecordingsDir))
	}

	if d := src.Depth; d != nil {
		setPtr(&dst.Depth.Enabled, d.Enabled)
		setPtr(&dst.Depth.PoolMaxSize, d.PoolMaxSize)
		setPtr(&dst.Depth.Width, d.Width)
		setPtr(&dst.Depth.Height, d.Height)
		if err := setDuration(&dst.Depth.ReadbackDrainTimeout, "depth.readbackDrainTimeout", d.ReadbackDrainTimeout); err != nil {
			return err
		}
		if err := setDuration(&dst.Depth.PermissionPollInterval, "depth.permissionPollInterval", d.PermissionPollInterval); err != nil {
			return err
		}
	}

	if c := src.Camera; c != nil {
		setPtr(&dst.Camera.Enabled, c.Enabled)
		setPtr(&dst.Camera.Width, c.Width)
		setPtr(&dst.Camera.Height, c.Height)
		if c.Eyes != nil {
			dst.Camera.Eyes = append([]string(nil), c.Eyes...)
		}
	}

	if p := src.Pose; p != nil && p.Nodes != nil {
		nodes := make([]PoseNodeConfig, 0, len(p.Nodes))
		for i, n := range p.Nodes {
			node := PoseNodeConfig{Name: n.Name, Rotation: append([]float64(nil), n.Rotation...)}
			setPtr(&node.Gated, n.Gated)
			switch len(n.Translation) {
			case 0:
			case 3:
				copy(node.Translation[:], n.Translation)
			default:
				return fmt.Errorf("pose.nodes[%d].translation: want 3 values, got %d", i, len(n.Translation))
			}
			nodes = append(nodes, node)
		}
		dst.Pose.Nodes = nodes
	}

	if a := src.API; a != nil {
		setString(&dst.API.ListenAddr, a.ListenAddr)
		setPtr(&dst.API.RateLimit, a.RateLimit)
		if err := setDuration(&dst.API.ShutdownTimeout, "api.shutdownTimeout", a.ShutdownTimeout); err != nil {
			return err
		}
	}

	if t := src.Telemetry; t != nil {
		setPtr(&dst.Telemetry.Enabled, t.Enabled)
		setString(&dst.Telemetry.Exporter, t.Exporter)
		setString(&dst.Telemetry.Endpoint, t.Endpoint)
		setPtr(&dst.Telemetry.SamplingRate, t.SamplingRate)
	}

	if j := src.Journal; j != nil {
		setPtr(&dst.Journal.Enabled, j.Enabled)
		setString(&dst.Journal.Path, os.ExpandEnv(j.Path))
	}
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.DataDir = l.envString(EnvDataDir, cfg.DataDir)
	cfg.Device = l.envString(EnvDevice, cfg.Device)
	cfg.LogLevel = l.envString(EnvLogLevel, cfg.LogLevel)
	cfg.LogService = l.envString(EnvLogService, cfg.LogService)

	cfg.Capture.RateHz = l.envFloat(EnvCaptureRateHz, cfg.Capture.RateHz)
	cfg.Capture.TickHz = l.envFloat(EnvTickHz, cfg.Capture.TickHz)
	cfg.Capture.RecordingsDir = l.envString(EnvRecordingsDir, cfg.Capture.RecordingsDir)

	cfg.Depth.Enabled = l.envBool(EnvDepthEnabled, cfg.Depth.Enabled)
	cfg.Depth.PoolMaxSize = l.envInt(EnvDepthPoolMaxSize, cfg.Depth.PoolMaxSize)
	cfg.Depth.ReadbackDrainTimeout = l.envDuration(EnvDepthDrainTimeout, cfg.Depth.ReadbackDrainTimeout)

	cfg.Camera.Enabled = l.envBool(EnvCameraEnabled, cfg.Camera.Enabled)
	cfg.Camera.Eyes = l.envList(EnvCameraEyes, cfg.Camera.Eyes)

	cfg.API.ListenAddr = l.envString(EnvListen, cfg.API.ListenAddr)
	cfg.API.RateLimit = l.envInt(EnvAPIRateLimit, cfg.API.RateLimit)

	cfg.Telemetry.Enabled = l.envBool(EnvTelemetryEnabled, cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvOTelExporter, cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvOTelEndpoint, cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvOTelSamplingRate, cfg.Telemetry.SamplingRate)

	cfg.Journal.Enabled = l.envBool(EnvJournalEnabled, cfg.Journal.Enabled)
	cfg.Journal.Path = l.envString(EnvJournalPath, cfg.Journal.Path)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, field, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}
