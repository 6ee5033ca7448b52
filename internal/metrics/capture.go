// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GateTicksTotal counts gate evaluations by outcome (gated|skipped).
	GateTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xrcap_gate_ticks_total",
		Help: "Capture gate evaluations by result",
	}, []string{"result"})

	// DepthFramesTotal counts depth frames per eye by outcome.
	DepthFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xrcap_depth_frames_total",
		Help: "Depth frames by eye and result (written, readback_error, write_error, skipped reasons)",
	}, []string{"eye", "result"})

	// CameraCapturesTotal counts capture triggers forwarded to the native camera bridge.
	CameraCapturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xrcap_camera_captures_total",
		Help: "Camera capture triggers per eye",
	}, []string{"eye"})

	// PoseSamplesTotal counts pose samples per node by outcome (written|duplicate|error).
	PoseSamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xrcap_pose_samples_total",
		Help: "Pose samples per tracked node by result",
	}, []string{"node", "result"})

	RowLogRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xrcap_rowlog_rows_total",
		Help: "Row logger rows by stream and result (enqueued|written|rejected)",
	}, []string{"stream", "result"})

	RowLogPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "xrcap_rowlog_pending",
		Help: "Rows queued but not yet written per stream",
	}, []string{"stream"})

	BufferPoolIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xrcap_bufferpool_idle",
		Help: "Idle GPU buffers currently held by the pool",
	})

	BufferPoolOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xrcap_bufferpool_ops_total",
		Help: "GPU buffer pool operations (allocate|reuse|release|destroy_*|release_rejected)",
	}, []string{"op"})

	PermissionGranted = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "xrcap_permission_granted",
		Help: "Whether a polled OS permission is currently granted (1) or not (0)",
	}, []string{"kind"})

	SessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "xrcap_session_state",
		Help: "Recording controller state (1 for the current state, 0 otherwise)",
	}, []string{"state"})

	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xrcap_sessions_total",
		Help: "Recording sessions by result (started|completed|start_failed|rejected)",
	}, []string{"result"})

	SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "xrcap_session_duration_seconds",
		Help:    "Wall-clock length of completed recording sessions",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})

	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xrcap_verifications_total",
		Help: "Session layout verifications by result (ok|mismatch|write_failed|dropped)",
	}, []string{"result"})

	VerificationMismatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xrcap_verification_mismatches_total",
		Help: "Layout mismatches found by session verification, by kind",
	}, []string{"kind"})
)

// IncGateTick records one gate evaluation.
func IncGateTick(gated bool) {
	if gated {
		GateTicksTotal.WithLabelValues("gated").Inc()
		return
	}
	GateTicksTotal.WithLabelValues("skipped").Inc()
}

// IncDepthFrame records a depth frame outcome for one eye ("both" for frame-level skips).
func IncDepthFrame(eye, result string) {
	if eye == "" {
		eye = "both"
	}
	if result == "" {
		result = "unknown"
	}
	DepthFramesTotal.WithLabelValues(eye, result).Inc()
}

// IncPoseSample records a pose sample outcome.
func IncPoseSample(node, result string) {
	PoseSamplesTotal.WithLabelValues(node, result).Inc()
}

// IncRowLog records a row logger event.
func IncRowLog(stream, result string) {
	if stream == "" {
		stream = "unknown"
	}
	RowLogRowsTotal.WithLabelValues(stream, result).Inc()
}

// SetRowLogPending publishes the current queue depth of a row logger.
func SetRowLogPending(stream string, n int) {
	if stream == "" {
		stream = "unknown"
	}
	RowLogPending.WithLabelValues(stream).Set(float64(n))
}

// SetBufferPoolIdle publishes the idle queue length of the active pool.
func SetBufferPoolIdle(n int) {
	BufferPoolIdle.Set(float64(n))
}

// IncBufferPoolOp records a buffer pool operation.
func IncBufferPoolOp(op string) {
	BufferPoolOpsTotal.WithLabelValues(op).Inc()
}

// SetPermission publishes a permission state.
func SetPermission(kind string, granted bool) {
	v := 0.0
	if granted {
		v = 1
	}
	PermissionGranted.WithLabelValues(kind).Set(v)
}

// SetSessionState marks state as current and clears the others.
func SetSessionState(state string, all []string) {
	for _, s := range all {
		if s == state {
			SessionState.WithLabelValues(s).Set(1)
		} else {
			SessionState.WithLabelValues(s).Set(0)
		}
	}
}

// IncSession records a session lifecycle outcome.
func IncSession(result string) {
	SessionsTotal.WithLabelValues(result).Inc()
}

// ObserveSessionDuration records the length of a completed session.
func ObserveSessionDuration(d time.Duration) {
	SessionDuration.Observe(d.Seconds())
}

// IncVerification records a verification outcome.
func IncVerification(result string) {
	VerificationsTotal.WithLabelValues(result).Inc()
}

// AddVerificationMismatches records n mismatches of kind.
func AddVerificationMismatches(kind string, n int) {
	VerificationMismatchesTotal.WithLabelValues(kind).Add(float64(n))
}
