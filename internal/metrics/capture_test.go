// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestIncDepthFrame_DefaultsLabels(t *testing.T) {
	both := DepthFramesTotal.WithLabelValues("both", "unknown")
	before := counterValue(t, both)

	IncDepthFrame("", "")
	assert.Equal(t, before+1, counterValue(t, both))

	left := DepthFramesTotal.WithLabelValues("left", "written")
	before = counterValue(t, left)
	IncDepthFrame("left", "written")
	assert.Equal(t, before+1, counterValue(t, left))
}

func TestIncGateTick(t *testing.T) {
	gated := GateTicksTotal.WithLabelValues("gated")
	skipped := GateTicksTotal.WithLabelValues("skipped")
	g0, s0 := counterValue(t, gated), counterValue(t, skipped)

	IncGateTick(true)
	IncGateTick(false)
	IncGateTick(false)

	assert.Equal(t, g0+1, counterValue(t, gated))
	assert.Equal(t, s0+2, counterValue(t, skipped))
}

func TestSetSessionState_OneHot(t *testing.T) {
	all := []string{"idle", "recording", "finalizing"}
	SetSessionState("recording", all)

	assert.Equal(t, 0.0, gaugeValue(t, SessionState.WithLabelValues("idle")))
	assert.Equal(t, 1.0, gaugeValue(t, SessionState.WithLabelValues("recording")))
	assert.Equal(t, 0.0, gaugeValue(t, SessionState.WithLabelValues("finalizing")))

	SetSessionState("idle", all)
	assert.Equal(t, 1.0, gaugeValue(t, SessionState.WithLabelValues("idle")))
	assert.Equal(t, 0.0, gaugeValue(t, SessionState.WithLabelValues("recording")))
}

func TestGaugeSetters(t *testing.T) {
	SetPermission("scene", true)
	assert.Equal(t, 1.0, gaugeValue(t, PermissionGranted.WithLabelValues("scene")))
	SetPermission("scene", false)
	assert.Equal(t, 0.0, gaugeValue(t, PermissionGranted.WithLabelValues("scene")))

	SetRowLogPending("", 7)
	assert.Equal(t, 7.0, gaugeValue(t, RowLogPending.WithLabelValues("unknown")))

	SetBufferPoolIdle(3)
	assert.Equal(t, 3.0, gaugeValue(t, BufferPoolIdle))
}

func TestVerificationCounters(t *testing.T) {
	ok := VerificationsTotal.WithLabelValues("ok")
	before := counterValue(t, ok)
	IncVerification("ok")
	assert.Equal(t, before+1, counterValue(t, ok))

	layout := VerificationMismatchesTotal.WithLabelValues("layout")
	before = counterValue(t, layout)
	AddVerificationMismatches("layout", 3)
	assert.Equal(t, before+3, counterValue(t, layout))
}

func TestPromhttpExposure(t *testing.T) {
	ObserveSessionDuration(2 * time.Second)
	IncSession("completed")
	IncGateTick(true)

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)
	for _, name := range []string{
		"xrcap_session_duration_seconds",
		"xrcap_sessions_total",
		"xrcap_gate_ticks_total",
	} {
		assert.Contains(t, body, name)
	}
}
