// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/xrcap/internal/config"
)

type staticChecker struct {
	name   string
	result CheckResult
}

func (s staticChecker) Name() string { return s.name }

func (s staticChecker) Check(context.Context) CheckResult { return s.result }

func TestManager_HealthIgnoresComponentsUnlessVerbose(t *testing.T) {
	m := NewManager("v1")
	m.RegisterChecker(staticChecker{"journal", CheckResult{Status: StatusUnhealthy}})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)
	assert.Equal(t, "v1", resp.Version)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Contains(t, resp.Checks, "journal")
}

func TestManager_Ready(t *testing.T) {
	m := NewManager("v1")
	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)

	m.RegisterChecker(staticChecker{"permission_scene", CheckResult{Status: StatusDegraded}})
	resp = m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusDegraded, resp.Status)

	m.RegisterChecker(staticChecker{"storage", CheckResult{Status: StatusUnhealthy}})
	resp = m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestServeReady_StatusCodes(t *testing.T) {
	m := NewManager("v1")
	m.RegisterChecker(staticChecker{"storage", CheckResult{Status: StatusUnhealthy, Error: "gone"}})

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Ready)
	assert.Equal(t, "gone", body.Checks["storage"].Error)

	rec = httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestDirChecker(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, StatusHealthy, NewDirChecker("storage", dir).Check(context.Background()).Status)

	r := NewDirChecker("storage", filepath.Join(dir, "missing")).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, r.Status)
	assert.Contains(t, r.Error, "does not exist")

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	assert.Equal(t, StatusUnhealthy, NewDirChecker("storage", file).Check(context.Background()).Status)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "probe file is removed")
}

func TestPingChecker(t *testing.T) {
	assert.Equal(t, StatusHealthy, NewPingChecker("journal", nil).Check(context.Background()).Status)
	assert.Equal(t, StatusHealthy, NewPingChecker("journal", func(context.Context) error { return nil }).Check(context.Background()).Status)

	r := NewPingChecker("journal", func(context.Context) error { return errors.New("locked") }).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, r.Status)
	assert.Equal(t, "locked", r.Error)
}

func TestRecorderChecker(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	state, since := "recording", now.Add(-time.Hour)
	c := NewRecorderChecker(func() (string, time.Time) { return state, since }, 30*time.Second)
	c.now = func() time.Time { return now }

	r := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)
	assert.Equal(t, "recording", r.Message)

	state, since = "finalizing", now.Add(-10*time.Second)
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	since = now.Add(-2 * time.Minute)
	r = c.Check(context.Background())
	assert.Equal(t, StatusDegraded, r.Status)
	assert.Equal(t, "finalizing for 2m0s", r.Message)
}

func TestPermissionChecker(t *testing.T) {
	granted := false
	c := NewPermissionChecker("scene", func() bool { return granted })
	assert.Equal(t, "permission_scene", c.Name())
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)
	granted = true
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
}

func TestPerformStartupChecks(t *testing.T) {
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.Capture.RecordingsDir = filepath.Join(cfg.DataDir, "recordings")

	err := PerformStartupChecks(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recordings directory")

	require.NoError(t, os.MkdirAll(cfg.Capture.RecordingsDir, 0o750))
	assert.NoError(t, PerformStartupChecks(cfg))

	cfg.Depth.Enabled = false
	cfg.Camera.Enabled = false
	cfg.Pose.Nodes = nil
	assert.Error(t, PerformStartupChecks(cfg))
}
