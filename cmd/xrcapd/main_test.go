// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/xrcap/internal/config"
)

func TestResolveConfigPath(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv(config.EnvDataDir, dataDir)

	assert.Equal(t, "/etc/xrcap.yaml", resolveConfigPath(" /etc/xrcap.yaml "))
	assert.Empty(t, resolveConfigPath(""), "no config.yaml in data dir")

	auto := filepath.Join(dataDir, "config.yaml")
	require.NoError(t, os.WriteFile(auto, []byte("device: sim\n"), 0o600))
	assert.Equal(t, auto, resolveConfigPath(""))
}

func TestHealthcheck(t *testing.T) {
	var ready atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/healthz":
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/readyz" && ready.Load():
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()
	addr := strings.TrimPrefix(srv.URL, "http://")

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, healthcheck([]string{"--addr", addr}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "503")

	stdout.Reset()
	assert.Equal(t, 0, healthcheck([]string{"--addr", addr, "--mode", "live"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "(live)")

	ready.Store(true)
	assert.Equal(t, 0, healthcheck([]string{"--addr", addr}, &stdout, &stderr))

	assert.Equal(t, 2, healthcheck([]string{"--bogus"}, &stdout, &stderr))
}
