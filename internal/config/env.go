// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/xrcap/internal/log"
)

// Environment variable names.
const (
	EnvDataDir           = "XRCAP_DATA"
	EnvDevice            = "XRCAP_DEVICE"
	EnvLogLevel          = "XRCAP_LOG_LEVEL"
	EnvLogService        = "XRCAP_LOG_SERVICE"
	EnvCaptureRateHz     = "XRCAP_CAPTURE_RATE_HZ"
	EnvTickHz            = "XRCAP_TICK_HZ"
	EnvRecordingsDir     = "XRCAP_RECORDINGS_DIR"
	EnvDepthEnabled      = "XRCAP_DEPTH_ENABLED"
	EnvDepthPoolMaxSize  = "XRCAP_DEPTH_POOL_MAX_SIZE"
	EnvDepthDrainTimeout = "XRCAP_DEPTH_DRAIN_TIMEOUT"
	EnvCameraEnabled     = "XRCAP_CAMERA_ENABLED"
	EnvCameraEyes        = "XRCAP_CAMERA_EYES"
	EnvListen            = "XRCAP_LISTEN"
	EnvAPIRateLimit      = "XRCAP_API_RATE_LIMIT"
	EnvTelemetryEnabled  = "XRCAP_TELEMETRY_ENABLED"
	EnvOTelExporter      = "XRCAP_OTEL_EXPORTER"
	EnvOTelEndpoint      = "XRCAP_OTEL_ENDPOINT"
	EnvOTelSamplingRate  = "XRCAP_OTEL_SAMPLING_RATE"
	EnvJournalEnabled    = "XRCAP_JOURNAL_ENABLED"
	EnvJournalPath       = "XRCAP_JOURNAL_PATH"
)

// parseEnv reads key and converts it with parse. Empty and invalid values
// fall back to defaultValue; invalid ones are logged as warnings.
func parseEnv[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logger.Debug().
			Str("key", key).
			Str("default", fmt.Sprint(defaultValue)).
			Str("source", "default").
			Msg("using default value")
		return defaultValue
	}
	parsed, err := parse(v)
	if err != nil {
		logger.Warn().
			Err(err).
			Str("event", "config.env_invalid").
			Str("key", key).
			Str("value", v).
			Str("default", fmt.Sprint(defaultValue)).
			Msg("invalid environment variable, using default")
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Str("value", v).
		Str("source", "environment").
		Msg("using environment variable")
	return parsed
}

// ParseString reads a string from the environment or returns defaultValue.
func ParseString(key, defaultValue string) string {
	return parseEnv(key, defaultValue, func(s string) (string, error) { return s, nil })
}

// ParseInt reads an integer from the environment or returns defaultValue.
func ParseInt(key string, defaultValue int) int {
	return parseEnv(key, defaultValue, strconv.Atoi)
}

// ParseFloat reads a float64 from the environment or returns defaultValue.
func ParseFloat(key string, defaultValue float64) float64 {
	return parseEnv(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// ParseDuration reads a Go duration ("5s") from the environment or returns
// defaultValue.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseEnv(key, defaultValue, time.ParseDuration)
}

// ParseBool reads a boolean from the environment or returns defaultValue.
// It accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	return parseEnv(key, defaultValue, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return false, fmt.Errorf("invalid boolean %q", s)
	})
}

// ParseList reads a comma separated list from the environment. Blank items
// are dropped.
func ParseList(key string, defaultValue []string) []string {
	return parseEnv(key, defaultValue, func(s string) ([]string, error) {
		var out []string
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("empty list")
		}
		return out, nil
	})
}
