// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
)

// ManifestFile is the per-session metadata file name.
const ManifestFile = "session.json"

// Manifest statuses.
const (
	StatusRecording = "recording"
	StatusComplete  = "complete"
	StatusFailed    = "failed"
)

// Manifest is the content of session.json.
type Manifest struct {
	SessionID     string            `json:"session_id"`
	Name          string            `json:"name"`
	Device        string            `json:"device"`
	Status        string            `json:"status"`
	CaptureRateHz float64           `json:"capture_rate_hz"`
	StartedAt     time.Time         `json:"started_at"`
	StoppedAt     *time.Time        `json:"stopped_at,omitempty"`
	Streams       []string          `json:"streams"`
	FrameCount    map[string]uint64 `json:"frame_count,omitempty"`
	Errors        []string          `json:"errors,omitempty"`
}

// WriteManifest atomically replaces <dir>/session.json.
func WriteManifest(dir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode manifest: %w", err)
	}
	data = append(data, '\n')
	if err := renameio.WriteFile(filepath.Join(dir, ManifestFile), data, 0o640); err != nil {
		return fmt.Errorf("session: write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads <dir>/session.json.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	// #nosec G304 -- dir is a session directory under the recordings root
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("session: decode manifest: %w", err)
	}
	return m, nil
}
