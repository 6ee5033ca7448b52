// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// AppConfig is the resolved daemon configuration.
type AppConfig struct {
	Version    string
	DataDir    string
	Device     string
	LogLevel   string
	LogService string

	Capture   CaptureConfig
	Depth     DepthConfig
	Camera    CameraConfig
	Pose      PoseConfig
	API       APIConfig
	Telemetry TelemetryConfig
	Journal   JournalConfig
}

// CaptureConfig controls the shared gate and the tick driver.
type CaptureConfig struct {
	// RateHz is the gated capture rate. 0 captures on every tick.
	RateHz float64
	// TickHz is the rate of the daemon's tick driver.
	TickHz        float64
	RecordingsDir string
}

// DepthConfig controls the depth pipeline and its buffer pool.
type DepthConfig struct {
	Enabled                bool
	PoolMaxSize            int
	ReadbackDrainTimeout   time.Duration
	PermissionPollInterval time.Duration
	Width                  int
	Height                 int
}

// CameraConfig controls the passthrough camera bridges.
type CameraConfig struct {
	Enabled bool
	Eyes    []string
	Width   int
	Height  int
}

// PoseConfig lists the tracked nodes to log.
type PoseConfig struct {
	Nodes []PoseNodeConfig
}

// PoseNodeConfig configures one pose logger.
type PoseNodeConfig struct {
	Name  string
	Gated bool
	// Translation and Rotation are applied to every sample when Rotation is
	// set. Rotation is a quaternion (x, y, z, w).
	Translation [3]float64
	Rotation    []float64
}

// APIConfig controls the HTTP control surface.
type APIConfig struct {
	ListenAddr string
	// RateLimit is requests per minute per client IP. 0 disables limiting.
	RateLimit       int
	ShutdownTimeout time.Duration
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

// JournalConfig controls the SQLite session journal.
type JournalConfig struct {
	Enabled bool
	Path    string
}

// FileConfig is the YAML shape of the config file. Pointer fields
// distinguish "unset" from the zero value.
type FileConfig struct {
	DataDir    string `yaml:"dataDir,omitempty"`
	Device     string `yaml:"device,omitempty"`
	LogLevel   string `yaml:"logLevel,omitempty"`
	LogService string `yaml:"logService,omitempty"`

	Capture   *CaptureFileConfig   `yaml:"capture,omitempty"`
	Depth     *DepthFileConfig     `yaml:"depth,omitempty"`
	Camera    *CameraFileConfig    `yaml:"camera,omitempty"`
	Pose      *PoseFileConfig      `yaml:"pose,omitempty"`
	API       *APIFileConfig       `yaml:"api,omitempty"`
	Telemetry *TelemetryFileConfig `yaml:"telemetry,omitempty"`
	Journal   *JournalFileConfig   `yaml:"journal,omitempty"`
}

// CaptureFileConfig is the YAML shape of CaptureConfig.
type CaptureFileConfig struct {
	RateHz        *float64 `yaml:"rateHz,omitempty"`
	TickHz        *float64 `yaml:"tickHz,omitempty"`
	RecordingsDir string   `yaml:"recordingsDir,omitempty"`
}

// DepthFileConfig is the YAML shape of DepthConfig.
type DepthFileConfig struct {
	Enabled                *bool  `yaml:"enabled,omitempty"`
	PoolMaxSize            *int   `yaml:"poolMaxSize,omitempty"`
	ReadbackDrainTimeout   string `yaml:"readbackDrainTimeout,omitempty"`
	PermissionPollInterval string `yaml:"permissionPollInterval,omitempty"`
	Width                  *int   `yaml:"width,omitempty"`
	Height                 *int   `yaml:"height,omitempty"`
}

// CameraFileConfig is the YAML shape of CameraConfig.
type CameraFileConfig struct {
	Enabled *bool    `yaml:"enabled,omitempty"`
	Eyes    []string `yaml:"eyes,omitempty"`
	Width   *int     `yaml:"width,omitempty"`
	Height  *int     `yaml:"height,omitempty"`
}

// PoseFileConfig is the YAML shape of PoseConfig.
type PoseFileConfig struct {
	Nodes []PoseNodeFileConfig `yaml:"nodes,omitempty"`
}

// PoseNodeFileConfig is the YAML shape of PoseNodeConfig.
type PoseNodeFileConfig struct {
	Name        string    `yaml:"name"`
	Gated       *bool     `yaml:"gated,omitempty"`
	Translation []float64 `yaml:"translation,omitempty"`
	Rotation    []float64 `yaml:"rotation,omitempty"`
}

// APIFileConfig is the YAML shape of APIConfig.
type APIFileConfig struct {
	ListenAddr      string `yaml:"listenAddr,omitempty"`
	RateLimit       *int   `yaml:"rateLimit,omitempty"`
	ShutdownTimeout string `yaml:"shutdownTimeout,omitempty"`
}

// TelemetryFileConfig is the YAML shape of TelemetryConfig.
type TelemetryFileConfig struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}

// JournalFileConfig is the YAML shape of JournalConfig.
type JournalFileConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}
