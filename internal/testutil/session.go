// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package testutil records real sessions on simulated devices for tests
// outside the session package.
package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/xrcap/internal/camera"
	"github.com/ManuGH/xrcap/internal/capture"
	"github.com/ManuGH/xrcap/internal/capture/gate"
	"github.com/ManuGH/xrcap/internal/clock"
	"github.com/ManuGH/xrcap/internal/depth"
	"github.com/ManuGH/xrcap/internal/pose"
	"github.com/ManuGH/xrcap/internal/session"
	"github.com/ManuGH/xrcap/internal/sim"
)

// Start is the fake wall clock origin of recorded sessions.
var Start = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

const tick = 10 * time.Millisecond

// RecordSession records name under recordingsDir for length of fake time,
// ticking at 100 Hz with the gate at rateHz. Every stream runs on simulated
// devices. It returns once all readbacks have completed.
func RecordSession(t require.TestingT, recordingsDir, name string, length time.Duration, rateHz float64) session.Summary {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}

	fake := clock.NewFake(Start)
	g := sim.NewGPU()
	camClock := sim.NewDeviceClock(fake, sim.CameraEpoch)
	tracker := sim.NewTracker(sim.NewDeviceClock(fake, sim.PoseEpoch))

	streams := []capture.Stream{
		depth.New(sim.NewDepthSource(sim.NewDeviceClock(fake, sim.DepthEpoch), 16, 12), g, nil, depth.Config{DrainTimeout: 5 * time.Second}),
		camera.New(capture.Left, sim.NewCamera(capture.Left, camClock, 32, 24)),
		camera.New(capture.Right, sim.NewCamera(capture.Right, camClock, 32, 24)),
		pose.New(pose.Config{Node: pose.Head, Gated: true}, tracker),
		pose.New(pose.Config{Node: pose.LeftController}, tracker),
	}

	c, err := session.New(session.Config{RecordingsDir: recordingsDir, Device: "sim", PoolMaxSize: 4}, session.Deps{
		Gate:      gate.New(rateHz),
		Allocator: g,
		Streams:   streams,
		Clock:     fake,
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.Start(ctx, name)
	require.NoError(t, err)

	for elapsed := time.Duration(0); elapsed < length; elapsed += tick {
		c.Tick(fake.Now())
		fake.Advance(tick)
	}

	summary, err := c.Stop(ctx)
	require.NoError(t, err)
	g.Wait()
	return summary
}
